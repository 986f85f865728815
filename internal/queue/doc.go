// Package queue persists simulation jobs in SQLite so requests survive
// process restarts and a background worker can drain them. The store keeps
// one row per job with its lifecycle status, progress snapshot and the
// scored outcome once the pipeline finishes.
package queue
