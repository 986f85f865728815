package services

import (
	"context"
	"errors"
	"strings"
)

// Kind identifies a failure taxonomy entry.
type Kind string

const (
	KindPlanningFailure   Kind = "planning_failure"
	KindEnrichmentFailure Kind = "enrichment_failure"
	KindValidationFailure Kind = "validation_failure"
	KindExecutionFailure  Kind = "execution_failure"
	KindTimeout           Kind = "timeout"
	KindConfiguration     Kind = "configuration_error"
	KindCanceled          Kind = "canceled"
	KindUnknown           Kind = "unknown"
)

// Classification is the total mapping of a failure to its taxonomy entry.
type Classification struct {
	Kind       Kind
	Retryable  bool
	Suggestion string
	Message    string
}

// Classify maps any error to exactly one taxonomy kind plus a retry
// disposition. Unrecognized errors fall through to KindUnknown and are
// treated as fatal so the orchestrator never retries blind.
func Classify(err error) Classification {
	cls := Classification{Kind: KindUnknown}
	if err == nil {
		return cls
	}
	cls.Message = strings.TrimSpace(err.Error())

	switch {
	case errors.Is(err, context.Canceled):
		cls.Kind = KindCanceled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		cls.Kind = KindTimeout
		cls.Retryable = true
		cls.Suggestion = "the external service did not answer in time; the stage is retried with backoff"
	case errors.Is(err, ErrPlanning):
		cls.Kind = KindPlanningFailure
		cls.Retryable = true
		cls.Suggestion = "rephrase the request with more specific details"
	case errors.Is(err, ErrEnrichment):
		cls.Kind = KindEnrichmentFailure
		cls.Suggestion = "check the materials database; enrichment should never fail with the fallback material available"
	case errors.Is(err, ErrValidation):
		cls.Kind = KindValidationFailure
		cls.Retryable = true
		cls.Suggestion = "the generated script failed structural checks; a single auto-fix attempt is made"
	case errors.Is(err, ErrExecution):
		cls.Kind = KindExecutionFailure
		cls.Retryable = true
		cls.Suggestion = "check the Blender installation and the captured diagnostic output"
	case errors.Is(err, ErrConfiguration):
		cls.Kind = KindConfiguration
		cls.Suggestion = "review the configuration file"
	case errors.Is(err, ErrTransient):
		cls.Kind = KindUnknown
		cls.Retryable = true
	}
	return cls
}

// Retryable reports whether the orchestrator may re-run the failed stage.
func Retryable(err error) bool {
	return Classify(err).Retryable
}
