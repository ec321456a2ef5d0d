package motion

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Replay is a MotionSource over a fixed slice of samples.
type Replay []Sample

// Samples streams the slice in order and then closes the channel.
func (r Replay) Samples(ctx context.Context) (<-chan Sample, error) {
	out := make(chan Sample)
	go func() {
		defer close(out)
		for _, s := range r {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// QuakeProfile describes a synthetic shaking recording.
type QuakeProfile struct {
	Start    time.Time
	Duration time.Duration
	Rate     time.Duration // sampling interval
	// Peak is the maximum horizontal acceleration in m/s².
	Peak float64
	// Noise is background jitter added to every sample.
	Noise float64
	Seed  int64
}

// Synthesize generates an oscillation that ramps up to Peak at the midpoint
// and decays again, on top of random noise.
func Synthesize(p QuakeProfile) Replay {
	if p.Rate <= 0 {
		p.Rate = 20 * time.Millisecond
	}
	r := rand.New(rand.NewSource(p.Seed))
	n := int(p.Duration / p.Rate)
	out := make(Replay, 0, n)
	for i := 0; i < n; i++ {
		phase := float64(i) / float64(max(n-1, 1))
		envelope := math.Sin(math.Pi * phase)
		wave := math.Sin(float64(i) * 0.9)
		out = append(out, Sample{
			X:  p.Peak*envelope*wave + p.Noise*(r.Float64()*2-1),
			Y:  p.Peak*envelope*math.Cos(float64(i)*0.7) + p.Noise*(r.Float64()*2-1),
			Z:  p.Noise * (r.Float64()*2 - 1),
			At: p.Start.Add(time.Duration(i) * p.Rate),
		})
	}
	return out
}
