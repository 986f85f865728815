package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyIsTotal(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantKind  Kind
		retryable bool
	}{
		{"planning", Wrap(ErrPlanning, "plan", "complete", "bad schema", nil), KindPlanningFailure, true},
		{"enrichment", Wrap(ErrEnrichment, "enrich", "resolve", "no fallback", nil), KindEnrichmentFailure, false},
		{"validation", Wrap(ErrValidation, "validate", "check", "forbidden op", nil), KindValidationFailure, true},
		{"execution", Wrap(ErrExecution, "execute", "run", "exit 1", nil), KindExecutionFailure, true},
		{"timeout", Wrap(ErrTimeout, "execute", "run", "deadline", nil), KindTimeout, true},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout, true},
		{"canceled", context.Canceled, KindCanceled, false},
		{"configuration", Wrap(ErrConfiguration, "", "", "bad toml", nil), KindConfiguration, false},
		{"transient", Wrap(ErrTransient, "", "", "hiccup", nil), KindUnknown, true},
		{"raw error", errors.New("surprise"), KindUnknown, false},
		{"wrapped raw", fmt.Errorf("outer: %w", errors.New("inner")), KindUnknown, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != tc.wantKind {
				t.Fatalf("Classify kind = %s, want %s", got.Kind, tc.wantKind)
			}
			if got.Retryable != tc.retryable {
				t.Fatalf("Classify retryable = %v, want %v", got.Retryable, tc.retryable)
			}
			if got.Message == "" {
				t.Fatal("classification lost the message")
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	got := Classify(nil)
	if got.Kind != KindUnknown || got.Retryable {
		t.Fatalf("Classify(nil) = %+v", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrExecution, "execute", "run blender", "exit status 11", cause)
	if !errors.Is(err, ErrExecution) {
		t.Fatal("marker not wrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not wrapped")
	}
}

func TestWrapNilMarkerFallsBackToTransient(t *testing.T) {
	err := Wrap(nil, "stage", "", "oops", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !Retryable(err) {
		t.Fatal("transient errors should be retryable")
	}
}
