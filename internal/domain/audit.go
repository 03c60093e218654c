package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
)

// AuditRecord is the trail entry written after every business operation,
// outside any account lock.
type AuditRecord struct {
	ID          uuid.UUID
	Actor       string
	Action      string
	EntityType  string
	EntityID    string
	Description string
	Outcome     AuditOutcome
	ErrorDetail *string
	Details     json.RawMessage
	CreatedAt   time.Time
}
