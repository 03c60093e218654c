package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlasbank/settlement-core/internal/domain"
)

type captureSink struct {
	records []*domain.AuditRecord
	err     error
}

func (s *captureSink) Insert(_ context.Context, rec *domain.AuditRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func TestRecorderSuccess(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink)

	r.Success(context.Background(), "teller-7", "DEPOSIT", "ACCOUNT", "acc-1", "deposit of 40", map[string]any{"amount": "40"})

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	require.Equal(t, domain.AuditOutcomeSuccess, rec.Outcome)
	require.Equal(t, "teller-7", rec.Actor)
	require.Equal(t, "DEPOSIT", rec.Action)
	require.Nil(t, rec.ErrorDetail)
	require.NotEqual(t, "", rec.ID.String())

	var details map[string]any
	require.NoError(t, json.Unmarshal(rec.Details, &details))
	require.Equal(t, "40", details["amount"])
}

func TestRecorderFailure(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink)

	r.Failure(context.Background(), "system", "WITHDRAWAL", "ACCOUNT", "acc-1", "withdrawal rejected", "insufficient funds")

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	require.Equal(t, domain.AuditOutcomeFailure, rec.Outcome)
	require.NotNil(t, rec.ErrorDetail)
	require.Equal(t, "insufficient funds", *rec.ErrorDetail)
}

func TestRecorderSinkErrorIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("db down")}
	r := NewRecorder(sink)

	require.NotPanics(t, func() {
		r.Success(context.Background(), "system", "DEPOSIT", "ACCOUNT", "acc-1", "x", nil)
		r.Failure(context.Background(), "system", "DEPOSIT", "ACCOUNT", "acc-1", "x", "boom")
	})
	require.Empty(t, sink.records)
}
