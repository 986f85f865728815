package stage

import (
	"fmt"
	"sort"
	"time"
)

// Timings maps stage names to elapsed seconds. Refinement re-runs record
// under iteration-qualified keys ("execute#1") so total time stays
// attributable per iteration.
type Timings map[string]float64

// Record stores the elapsed time for a stage. Iteration zero is the initial
// attempt and uses the bare stage name.
func (t Timings) Record(name string, iteration int, elapsed time.Duration) {
	t[Key(name, iteration)] = elapsed.Seconds()
}

// Key builds the map key for a stage at a given refinement iteration.
func Key(name string, iteration int) string {
	if iteration <= 0 {
		return name
	}
	return fmt.Sprintf("%s#%d", name, iteration)
}

// Total sums all recorded stage seconds.
func (t Timings) Total() float64 {
	var total float64
	for _, seconds := range t {
		total += seconds
	}
	return total
}

// Names returns the recorded keys in sorted order.
func (t Timings) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
