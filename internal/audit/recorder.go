// Package audit records who did what to which entity. Recording never
// fails the operation being audited; storage errors are logged and
// dropped.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/atlasbank/settlement-core/internal/domain"
	"github.com/atlasbank/settlement-core/internal/logging"
)

// Sink is where finished audit records go, typically the postgres audit
// repository.
type Sink interface {
	Insert(ctx context.Context, rec *domain.AuditRecord) error
}

type Recorder struct {
	sink Sink
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Success records a completed operation. Details, when present, are
// serialized to JSON; a serialization failure drops the details but
// keeps the record.
func (r *Recorder) Success(ctx context.Context, actor, action, entityType, entityID, description string, details map[string]any) {
	rec := newRecord(actor, action, entityType, entityID, description)
	rec.Outcome = domain.AuditOutcomeSuccess
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			logging.FromContext(ctx).Warn("audit details not serializable", "action", action, "error", err)
		} else {
			rec.Details = raw
		}
	}
	r.write(ctx, rec)
}

// Failure records a rejected or failed operation with its error detail.
func (r *Recorder) Failure(ctx context.Context, actor, action, entityType, entityID, description, errDetail string) {
	rec := newRecord(actor, action, entityType, entityID, description)
	rec.Outcome = domain.AuditOutcomeFailure
	rec.ErrorDetail = &errDetail
	r.write(ctx, rec)
}

func (r *Recorder) write(ctx context.Context, rec *domain.AuditRecord) {
	if err := r.sink.Insert(ctx, rec); err != nil {
		logging.FromContext(ctx).Error("audit record dropped",
			"action", rec.Action, "entity_type", rec.EntityType, "entity_id", rec.EntityID, "error", err)
	}
}

func newRecord(actor, action, entityType, entityID, description string) *domain.AuditRecord {
	return &domain.AuditRecord{
		ID:          uuid.New(),
		Actor:       actor,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// NopRecorder discards everything, for tests and for running without a
// database.
type NopRecorder struct{}

func (NopRecorder) Success(context.Context, string, string, string, string, string, map[string]any) {}
func (NopRecorder) Failure(context.Context, string, string, string, string, string, string)        {}
