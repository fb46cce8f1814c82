package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one audit record: a submission save, a derived mirror save, or a
// contained transform failure.
type Event struct {
	OccurredAt   time.Time
	Actor        string
	Action       string
	FormID       string
	SubmissionID string
	RequestID    string
	Payload      any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.FormID) == "" {
		return errors.New("FormID is required")
	}
	return nil
}

// Insert appends the event and returns its id. The integrity hash covers
// every identifying field plus the serialized payload.
func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	integrity := ComputeIntegritySHA256(event, payloadJSON)

	var submissionID sql.NullString
	if strings.TrimSpace(event.SubmissionID) != "" {
		submissionID = sql.NullString{String: strings.TrimSpace(event.SubmissionID), Valid: true}
	}
	var requestID sql.NullString
	if strings.TrimSpace(event.RequestID) != "" {
		requestID = sql.NullString{String: strings.TrimSpace(event.RequestID), Valid: true}
	}

	var eventID int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO audit_events (occurred_at, actor, action, form_id, submission_id, request_id, payload, integrity_sha256)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING event_id`,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.FormID),
		submissionID,
		requestID,
		payloadJSON,
		integrity,
	).Scan(&eventID)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return eventID, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|",
		event.OccurredAt.UTC().Format(time.RFC3339Nano),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.FormID),
		strings.TrimSpace(event.SubmissionID),
		strings.TrimSpace(event.RequestID),
	)
	_, _ = h.Write(payloadJSON)
	return hex.EncodeToString(h.Sum(nil))
}
