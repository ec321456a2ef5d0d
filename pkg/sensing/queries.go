package sensing

import (
	"slices"
	"strings"
	"time"
)

// RecentEvents returns up to limit of the newest retained events,
// oldest first. An empty cell means every cell; limit <= 0 means
// DefaultRecentLimit.
func (a *Aggregator) RecentEvents(cell string, limit int) []Event {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Event
	for _, e := range a.events {
		if cell == "" || e.LocationCell == cell {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return slices.Clone(out)
}

// Alerts returns the retained alerts, oldest first.
func (a *Aggregator) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Alert, len(a.alerts))
	for i, al := range a.alerts {
		al.Devices = slices.Clone(al.Devices)
		out[i] = al
	}
	return out
}

// AlertForCell returns the most recent retained alert for cell.
func (a *Aggregator) AlertForCell(cell string) (Alert, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.alerts) - 1; i >= 0; i-- {
		if al := a.alerts[i]; al.CellID == cell {
			al.Devices = slices.Clone(al.Devices)
			return al, true
		}
	}
	return Alert{}, false
}

// ActiveDevices lists devices seen within DeviceActivity, sorted by id.
func (a *Aggregator) ActiveDevices() []Device {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Device
	for id, last := range a.devices {
		if now.Sub(last) < DeviceActivity {
			out = append(out, Device{ID: id, LastSeen: last})
		}
	}
	slices.SortFunc(out, func(x, y Device) int { return strings.Compare(x.ID, y.ID) })
	return out
}

func (a *Aggregator) activeCount(now time.Time) int {
	n := 0
	for _, last := range a.devices {
		if now.Sub(last) < DeviceActivity {
			n++
		}
	}
	return n
}

// Stats summarises the last StatsWindow of activity per cell.
func (a *Aggregator) Stats() Stats {
	now := a.now()
	cutoff := now.Add(-StatsWindow)

	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{Cells: make(map[string]CellStats)}
	sums := make(map[string]float64)
	for _, e := range a.events {
		if !e.Timestamp.After(cutoff) {
			continue
		}
		stats.TotalEvents++
		cs := stats.Cells[e.LocationCell]
		cs.Count++
		sums[e.LocationCell] += e.Intensity
		if e.Intensity > cs.MaxIntensity {
			cs.MaxIntensity = e.Intensity
		}
		if !slices.Contains(cs.Devices, e.DeviceID) {
			cs.Devices = append(cs.Devices, e.DeviceID)
		}
		stats.Cells[e.LocationCell] = cs
	}
	for cell, cs := range stats.Cells {
		cs.AvgIntensity = sums[cell] / float64(cs.Count)
		stats.Cells[cell] = cs
	}

	for _, al := range a.alerts {
		if al.Timestamp.After(cutoff) {
			stats.TotalAlerts++
		}
	}
	stats.ActiveDevices = a.activeCount(now)
	return stats
}
