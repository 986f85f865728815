// Package validate performs static checks on generated Blender scripts
// before they are handed to an external process. Checks cover required
// structure (imports, save call, frame range) and a denylist of operations
// that have no business in a headless simulation script. A single bounded
// auto-fix pass repairs trivially recoverable issues; anything left after
// that is a validation failure.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"simforge/internal/artifact"
	"simforge/internal/logging"
	"simforge/internal/services"
)

// forbiddenPatterns match operations that must never appear in a script.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\beval\s*\(`),
	regexp.MustCompile(`\bexec\s*\(`),
	regexp.MustCompile(`\b__import__\s*\(`),
	regexp.MustCompile(`\bsubprocess\b`),
	regexp.MustCompile(`\bos\.system\s*\(`),
	regexp.MustCompile(`\bos\.remove\s*\(`),
	regexp.MustCompile(`\bshutil\.rmtree\s*\(`),
	regexp.MustCompile(`\bsocket\b`),
	regexp.MustCompile(`\burllib\b`),
	regexp.MustCompile(`\brequests\b`),
}

// Validator checks artifacts ahead of execution.
type Validator struct {
	logger *slog.Logger
}

// New constructs a Validator.
func New(logger *slog.Logger) *Validator {
	return &Validator{logger: logging.NewComponentLogger(logger, "validate")}
}

// Check validates the artifact, applying at most one auto-fix pass. The
// returned artifact carries the possibly repaired script. A non-nil error
// means the artifact is unusable even after repair.
func (v *Validator) Check(ctx context.Context, art artifact.Artifact) (artifact.Artifact, artifact.ValidationOutcome, error) {
	issues := inspect(art.Script)
	if len(issues) == 0 {
		return art, artifact.ValidationOutcome{Valid: true}, nil
	}

	log := logging.WithContext(ctx, v.logger)
	log.Warn("artifact failed validation, attempting repair",
		logging.Int("issue_count", len(issues)),
		logging.String("first_issue", issues[0]),
	)

	repaired, fixed := autoFix(art.Script, issues)
	if fixed {
		remaining := inspect(repaired)
		if len(remaining) == 0 {
			next := artifact.New(repaired, art.OutputPath, art.ComplexityScore)
			log.Info("artifact repaired")
			return next, artifact.ValidationOutcome{Valid: true, Issues: issues, AutoFixed: true}, nil
		}
		issues = remaining
	}

	outcome := artifact.ValidationOutcome{Valid: false, Issues: issues, AutoFixed: fixed}
	err := services.Wrap(services.ErrValidation, "validate-artifact", "check",
		fmt.Sprintf("script rejected: %s", strings.Join(issues, "; ")), nil)
	return art, outcome, err
}

// inspect returns every issue found in the script, in document order.
func inspect(script string) []string {
	var issues []string
	for _, pattern := range forbiddenPatterns {
		if line, ok := findForbidden(script, pattern); ok {
			issues = append(issues, fmt.Sprintf("forbidden operation %q at line %d", pattern.String(), line))
		}
	}
	if !strings.Contains(script, "import bpy") {
		issues = append(issues, "missing bpy import")
	}
	if !strings.Contains(script, "save_as_mainfile") {
		issues = append(issues, "missing save_as_mainfile call")
	}
	if !strings.Contains(script, "frame_end") {
		issues = append(issues, "missing frame range setup")
	}
	if !balancedParens(script) {
		issues = append(issues, "unbalanced parentheses")
	}
	return issues
}

// findForbidden reports the first line matching the pattern, skipping
// comment lines so that repaired scripts pass re-inspection.
func findForbidden(script string, pattern *regexp.Regexp) (int, bool) {
	for i, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if pattern.MatchString(line) {
			return i + 1, true
		}
	}
	return 0, false
}

// autoFix repairs issues that have a single obvious correction. It reports
// whether any change was made; callers re-inspect the result.
func autoFix(script string, issues []string) (string, bool) {
	fixed := false
	for _, issue := range issues {
		switch {
		case issue == "missing bpy import":
			script = "import bpy\n" + script
			fixed = true
		case strings.Contains(issue, "forbidden operation"):
			// Comment out the offending lines rather than deleting them so
			// the diff stays reviewable in job output.
			var changed bool
			script, changed = commentForbiddenLines(script)
			fixed = fixed || changed
		}
	}
	return script, fixed
}

func commentForbiddenLines(script string) (string, bool) {
	lines := strings.Split(script, "\n")
	changed := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		for _, pattern := range forbiddenPatterns {
			if pattern.MatchString(line) {
				lines[i] = "# removed: " + line
				changed = true
				break
			}
		}
	}
	return strings.Join(lines, "\n"), changed
}

// balancedParens checks paren nesting outside string literals and comments.
func balancedParens(script string) bool {
	depth := 0
	inString := byte(0)
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case inString != 0:
			if c == '\\' {
				i++
			} else if c == inString {
				inString = 0
			} else if c == '\n' {
				inString = 0
			}
		case c == '\'' || c == '"':
			inString = c
		case c == '#':
			for i < len(script) && script[i] != '\n' {
				i++
			}
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
