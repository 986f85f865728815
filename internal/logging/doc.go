// Package logging wraps log/slog with the attribute helpers, handler
// selection, and context plumbing used across the pipeline. Stages and
// services should log through loggers derived with WithContext so job,
// stage, and request identifiers stay attached to every record.
package logging
