package queue

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		status          string
		exhausted       int
		createdAt       string
		updatedAt       string
		lastHeartbeat   sql.NullString
		artifactPath     sql.NullString
		resultJSON      sql.NullString
		errorMessage    sql.NullString
		errorKind       sql.NullString
		progressStage   sql.NullString
		progressMessage sql.NullString
	)
	err := scanner.Scan(
		&job.ID, &job.Request, &status, &job.OutputPath, &artifactPath,
		&progressStage, &job.ProgressPercent, &progressMessage,
		&job.QualityScore, &exhausted, &job.Iterations, &resultJSON,
		&errorMessage, &errorKind, &createdAt, &updatedAt, &lastHeartbeat,
	)
	if err != nil {
		return nil, err
	}

	job.Status = Status(status)
	job.ExhaustedFallback = exhausted != 0
	job.ArtifactPath = artifactPath.String
	job.ResultJSON = resultJSON.String
	job.ErrorMessage = errorMessage.String
	job.ErrorKind = errorKind.String
	job.ProgressStage = progressStage.String
	job.ProgressMessage = progressMessage.String

	if job.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if lastHeartbeat.Valid && strings.TrimSpace(lastHeartbeat.String) != "" {
		hb, err := parseTimeString(lastHeartbeat.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_heartbeat: %w", err)
		}
		job.LastHeartbeat = &hb
	}
	return &job, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
