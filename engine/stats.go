// SPDX-License-Identifier: EPL-2.0

package engine

// PerformanceStats is a point-in-time snapshot of engine health counters
// maintained by the mixer.
type PerformanceStats struct {
	// CPUUsage is the exponentially smoothed fraction of the callback
	// period spent inside the callback, in [0, 1+].
	CPUUsage float64
	// PeakLevel is the peak absolute output sample of the most recent
	// callback, after clipping.
	PeakLevel float64
	// ActiveTracks counts tracks currently audible (playing or fading).
	ActiveTracks int
	// TotalTracks counts loaded tracks.
	TotalTracks int
	// Underruns is the cumulative count of streaming ring starvations.
	Underruns uint64
}

// GetPerformanceStats returns current mixer statistics.
func (e *Engine) GetPerformanceStats() PerformanceStats {
	e.mu.Lock()
	total := len(e.tracks)
	active := 0
	for _, t := range e.tracks {
		if State(t.state.Load()).countsTowardCap() {
			active++
		}
	}
	e.mu.Unlock()

	return PerformanceStats{
		CPUUsage:     e.cpuUsage.Load(),
		PeakLevel:    e.peakLevel.Load(),
		ActiveTracks: active,
		TotalTracks:  total,
		Underruns:    e.underruns.Load(),
	}
}
