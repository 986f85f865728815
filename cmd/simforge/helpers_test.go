package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	if got := truncate("short", 48); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	long := strings.Repeat("a", 60)
	got := truncate(long, 10)
	if got != strings.Repeat("a", 7)+"..." {
		t.Fatalf("truncate = %q", got)
	}
}

func TestJoinTruncated(t *testing.T) {
	values := []string{"wood_pine", "wood_oak", "metal_steel"}
	if got := joinTruncated(values, 60); got != "wood_pine, wood_oak, metal_steel" {
		t.Fatalf("joinTruncated = %q", got)
	}
	got := joinTruncated(values, 12)
	if !strings.Contains(got, "more") {
		t.Fatalf("expected overflow marker, got %q", got)
	}
}

func TestProgressPrinterNonInteractive(t *testing.T) {
	var buf bytes.Buffer
	printer := newProgressPrinter(&buf, true)
	printer.Report("generate-artifact", 0.4, "rendering script")
	printer.finish()

	out := buf.String()
	if !strings.Contains(out, "[ 40%] Generate Artifact: rendering script") {
		t.Fatalf("unexpected progress output %q", out)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "(unset)" {
		t.Fatalf("maskSecret empty = %q", got)
	}
	if got := maskSecret("shortkey"); got != "****" {
		t.Fatalf("maskSecret short = %q", got)
	}
	got := maskSecret("sk-or-v1-0123456789abcdef")
	if !strings.HasPrefix(got, "sk-o") || !strings.HasSuffix(got, "cdef") {
		t.Fatalf("maskSecret = %q", got)
	}
	if strings.Contains(got, "0123456789") {
		t.Fatalf("maskSecret leaked middle: %q", got)
	}
}
