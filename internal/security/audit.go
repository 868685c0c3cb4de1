package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// AuditLogger writes audit events as append-only JSONL.
// Each event is a single JSON line followed by a newline.
// Thread-safe: multiple goroutines can log concurrently.
type AuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewAuditLogger opens (or creates) the audit log file in append-only mode.
// File permissions are 0600 (owner read/write only).
func NewAuditLogger(path string, logger *slog.Logger) (*AuditLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &AuditLogger{
		file:   f,
		logger: logger,
	}, nil
}

// LogAction serializes the event as JSON and appends it to the audit log.
// Marshal happens outside the lock; only the file write is serialized.
func (a *AuditLogger) LogAction(ctx context.Context, event AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	_, writeErr := a.file.Write(data)
	a.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("writing audit event: %w", writeErr)
	}

	a.logger.DebugContext(ctx, "audit event logged",
		slog.String("action", event.Action),
		slog.String("user_id", event.UserID),
		slog.String("approval_id", event.ApprovalID),
		slog.String("result", event.Result),
	)
	return nil
}

// Close closes the underlying file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// StoreAuditLogger appends audit events to an AuditStore.
type StoreAuditLogger struct {
	store  AuditStore
	logger *slog.Logger
}

// NewStoreAuditLogger creates a store-backed audit logger.
func NewStoreAuditLogger(store AuditStore, logger *slog.Logger) *StoreAuditLogger {
	return &StoreAuditLogger{store: store, logger: logger}
}

// LogAction appends an audit event to the store.
func (a *StoreAuditLogger) LogAction(ctx context.Context, event AuditEvent) error {
	if err := a.store.Append(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to log audit event",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
		return err
	}
	a.logger.DebugContext(ctx, "audit event logged (store)",
		slog.String("action", event.Action),
		slog.String("user_id", event.UserID),
		slog.String("result", event.Result),
	)
	return nil
}

// Close is a no-op. The store is closed by the storage layer.
func (a *StoreAuditLogger) Close() error {
	return nil
}
