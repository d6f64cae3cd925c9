package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
)

// DefaultAuditLimit bounds the audit ring. Older entries are trimmed on write.
const DefaultAuditLimit = 10000

// Event is one authentication attempt, successful or not.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Identity  string    `json:"identity,omitempty"`
	Remote    string    `json:"remote,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
}

// AuditLog is an append-only ring of authentication events held in the
// keystore, trimmed on every write.
type AuditLog struct {
	store keystore.Store
	limit int64
}

// NewAuditLog creates an AuditLog trimming to limit entries.
func NewAuditLog(store keystore.Store, limit int64) *AuditLog {
	return &AuditLog{store: store, limit: limit}
}

// Record appends an event and trims the ring.
func (l *AuditLog) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	if err := l.store.LPush(ctx, keystore.AuthAuditKey, string(payload)); err != nil {
		return err
	}
	return l.store.LTrim(ctx, keystore.AuthAuditKey, 0, l.limit-1)
}

// Recent returns up to n events, newest first. Entries that fail to decode are
// skipped rather than failing the whole read.
func (l *AuditLog) Recent(ctx context.Context, n int64) ([]Event, error) {
	raw, err := l.store.LRange(ctx, keystore.AuthAuditKey, 0, n-1)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raw))
	for _, entry := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(entry), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Len returns the current ring size.
func (l *AuditLog) Len(ctx context.Context) (int64, error) {
	return l.store.LLen(ctx, keystore.AuthAuditKey)
}
