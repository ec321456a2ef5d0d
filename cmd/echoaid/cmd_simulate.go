package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/motion"
	"github.com/dd0wney/echoaid/pkg/sensing"
	"github.com/dd0wney/echoaid/pkg/validation"
)

type drillOptions struct {
	cell        string
	devices     int
	sensitivity int
	peak        float64
	duration    time.Duration
	seed        int64
	server      string
	token       string
}

func newSimulateCmd() *cobra.Command {
	var opts drillOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an earthquake drill from synthetic accelerometer traces",
		Long: `simulate synthesizes one shaking trace per virtual phone, runs each through
the on-device motion detector and submits the resulting reports. Without
--server the reports go to an in-process aggregator.`,
		Example: `  echoaid simulate --cell cell_10_6 --devices 4
  echoaid simulate --cell cell_10_6 --server http://localhost:8080 --token $TOKEN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cells.DefaultGrid().Parse(opts.cell); err != nil {
				return err
			}
			if opts.devices < 1 {
				return fmt.Errorf("devices must be at least 1, got %d", opts.devices)
			}

			events, err := detectDrill(cmd.Context(), opts, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d reports from %d devices in %s\n", len(events), opts.devices, opts.cell)
			if opts.server != "" {
				return submitRemote(cmd.Context(), out, opts, events)
			}
			return submitLocal(out, events)
		},
	}
	cmd.Flags().StringVar(&opts.cell, "cell", "", "cell the virtual phones are in")
	cmd.Flags().IntVar(&opts.devices, "devices", 4, "number of virtual phones")
	cmd.Flags().IntVar(&opts.sensitivity, "sensitivity", int(motion.Normal), "detector sensitivity, 1 (most) to 3 (least)")
	cmd.Flags().Float64Var(&opts.peak, "peak", 6, "peak horizontal acceleration in m/s²")
	cmd.Flags().DurationVar(&opts.duration, "duration", 3*time.Second, "length of each trace")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "noise seed")
	cmd.Flags().StringVar(&opts.server, "server", "", "EchoAid server base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token for --server")
	_ = cmd.MarkFlagRequired("cell")
	return cmd
}

// detectDrill runs every virtual phone's trace through its own detector
// and returns the emitted events in time order.
func detectDrill(ctx context.Context, opts drillOptions, start time.Time) ([]sensing.Event, error) {
	var events []sensing.Event
	for i := range opts.devices {
		trace := motion.Synthesize(motion.QuakeProfile{
			Start:    start,
			Duration: opts.duration,
			Rate:     20 * time.Millisecond,
			Peak:     opts.peak,
			Noise:    0.3,
			Seed:     opts.seed + int64(i),
		})
		d := motion.NewDetector(motion.DetectorConfig{
			DeviceID:    fmt.Sprintf("drill_%d", i+1),
			Sensitivity: motion.Sensitivity(opts.sensitivity),
			Cell:        func() string { return opts.cell },
		})
		err := d.Run(ctx, trace, func(ev sensing.Event) { events = append(events, ev) })
		if err != nil {
			return nil, err
		}
	}
	slices.SortStableFunc(events, func(a, b sensing.Event) int { return a.Timestamp.Compare(b.Timestamp) })
	return events, nil
}

func submitLocal(out io.Writer, events []sensing.Event) error {
	var now time.Time
	agg := sensing.NewAggregator(cells.DefaultGrid(), sensing.WithClock(func() time.Time { return now }))

	raised := 0
	for _, ev := range events {
		now = ev.Timestamp
		receipt, err := agg.ReportShaking(ev)
		if err != nil {
			return err
		}
		if receipt.Alert != nil {
			raised++
			printAlert(out, *receipt.Alert)
		}
	}
	if raised == 0 {
		fmt.Fprintln(out, "no alert raised")
	}
	return nil
}

func submitRemote(ctx context.Context, out io.Writer, opts drillOptions, events []sensing.Event) error {
	client := &http.Client{Timeout: 10 * time.Second}
	url := strings.TrimRight(opts.server, "/") + "/api/shaking"

	raised := 0
	for _, ev := range events {
		body, err := json.Marshal(validation.ShakingRequest{
			LocationCell: ev.LocationCell,
			Intensity:    ev.Intensity,
			DeviceID:     ev.DeviceID,
			Features:     ev.Features,
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if opts.token != "" {
			req.Header.Set("Authorization", "Bearer "+opts.token)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		var result struct {
			Alert *struct {
				CellID      string  `json:"cell_id"`
				DeviceCount int     `json:"device_count"`
				Confidence  float64 `json:"confidence"`
			} `json:"alert"`
			Evacuated []string `json:"evacuated"`
			Message   string   `json:"message"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("server refused report from %s: %s %s", ev.DeviceID, resp.Status, result.Message)
		}
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if a := result.Alert; a != nil {
			raised++
			fmt.Fprintf(out, "ALERT %s: %d devices, confidence %.0f, %d occupants evacuated\n",
				a.CellID, a.DeviceCount, a.Confidence, len(result.Evacuated))
		}
	}
	if raised == 0 {
		fmt.Fprintln(out, "no alert raised")
	}
	return nil
}

func printAlert(out io.Writer, a sensing.Alert) {
	fmt.Fprintf(out, "ALERT %s: %d devices (%s), avg intensity %.2f, confidence %.0f\n",
		a.CellID, a.DeviceCount, strings.Join(a.Devices, ", "), a.AvgIntensity, a.Confidence)
}
