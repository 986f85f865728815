// Package stage holds the contract shared by pipeline stages: progress
// reporting and per-stage timing bookkeeping. Stages emit progress through a
// Reporter; the orchestrator owns retries and sequencing.
package stage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Reporter receives (stage name, fractional progress, message) events.
// Implementations must tolerate concurrent jobs each using their own
// reporter; a single reporter sees calls in order.
type Reporter interface {
	Report(stage string, fraction float64, message string)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Report(string, float64, string) {}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(stage string, fraction float64, message string)

func (f ReporterFunc) Report(stage string, fraction float64, message string) {
	if f != nil {
		f(stage, fraction, message)
	}
}

var titleCaser = cases.Title(language.English)

// Label renders a stage name like "generate-artifact" as "Generate Artifact"
// for human-facing progress output.
func Label(name string) string {
	if name == "" {
		return ""
	}
	cleaned := strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return titleCaser.String(cleaned)
}
