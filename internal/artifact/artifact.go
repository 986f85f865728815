// Package artifact defines the generated script and the records produced by
// validating and executing it.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
)

// Artifact is the generated executable content for one pipeline attempt.
type Artifact struct {
	// Script is the Blender Python source to run headless.
	Script string
	// OutputPath is where the execution stage saves the scene file.
	OutputPath string
	// ComplexityScore in [0,1] drives execution-time estimation.
	ComplexityScore float64
	// Checksum identifies the script content for idempotence checks.
	Checksum string
}

// New builds an artifact and stamps its content checksum.
func New(script, outputPath string, complexity float64) Artifact {
	sum := sha256.Sum256([]byte(script))
	return Artifact{
		Script:          script,
		OutputPath:      outputPath,
		ComplexityScore: complexity,
		Checksum:        hex.EncodeToString(sum[:]),
	}
}

// ValidationOutcome reports the structural and security checks on a script.
type ValidationOutcome struct {
	Valid     bool
	Issues    []string
	AutoFixed bool
}

// ExecutionRecord captures one run of the external execution environment.
type ExecutionRecord struct {
	Success        bool
	OutputPath     string
	ElapsedSeconds float64
	Stdout         string
	Stderr         string
	ExitCode       int
	FrameCount     int
	FailureDetail  string
}
