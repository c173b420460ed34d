package domain

import (
	"context"
	"time"
)

// AuditRecord is one raw provider response kept for later inspection.
type AuditRecord struct {
	TransactionID string
	ExternalID    string
	PoolID        string
	Operation     string
	Status        TransactionStatus
	Raw           []byte
	RecordedAt    time.Time
}

type AuditArchiver interface {
	Archive(ctx context.Context, record AuditRecord) error
}
