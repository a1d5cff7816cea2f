package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/stream"
)

// Ledger is the single write path to the audit trail: the database row,
// then the optional downstream tap. The row is authoritative; a tap
// failure is logged and swallowed so reporting plumbing can never fail an
// enrolment.
type Ledger struct {
	audit db.AuditRepository
	tap   stream.Writer
	log   zerolog.Logger
}

// NewLedger wires the audit store and an optional tap; tap may be nil.
func NewLedger(audit db.AuditRepository, tap stream.Writer) *Ledger {
	return &Ledger{
		audit: audit,
		tap:   tap,
		log:   logger.For("ledger"),
	}
}

func (l *Ledger) Record(ctx context.Context, entry model.AuditEntry) error {
	if err := l.audit.Insert(ctx, &entry); err != nil {
		return err
	}
	if l.tap != nil {
		if err := l.tap.Append(entry); err != nil {
			l.log.Error().Err(err).Int64("entry_id", entry.ID).Msg("Audit tap write failed")
		}
	}
	return nil
}

func (l *Ledger) Claim(ctx context.Context, fingerprint string) error {
	return l.audit.ClaimFingerprint(ctx, fingerprint)
}

// Release frees a claim after a failed apply. Failure to release is
// logged, not returned: the claim row would block retries until cleaned
// up, which the alert mail tells operators how to do.
func (l *Ledger) Release(ctx context.Context, fingerprint string) {
	if err := l.audit.ReleaseFingerprint(ctx, fingerprint); err != nil {
		l.log.Error().Err(err).Str("fingerprint", fingerprint).Msg("Failed to release fingerprint claim")
	}
}
