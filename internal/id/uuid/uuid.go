// Package uuid issues run IDs.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a time-ordered UUID v7 string. IDs sort by creation time,
// so archive prefixes and database rows list runs chronologically.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// CreatedAt recovers the creation time embedded in a run ID.
func CreatedAt(runID string) (time.Time, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id: %w", err)
	}
	if id.Version() != 7 {
		return time.Time{}, fmt.Errorf("run id %s is version %d, want 7", runID, id.Version())
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}
