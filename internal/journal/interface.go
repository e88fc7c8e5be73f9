// Package journal keeps a SQLite debug log of sysfs access attempts and
// AVC denials seen by one process.
package journal

import (
	"context"
	"time"

	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/sysfs"
)

// Journal records attempts and denials. Record satisfies access.Sink;
// write failures are logged, never returned to the read path.
type Journal interface {
	Record(attempt sysfs.ReadAttempt)
	RecordDenials(ctx context.Context, denials []avc.Denial) error
	Attempts(ctx context.Context, path string, limit int) ([]AttemptEntry, error)
	Denials(ctx context.Context) ([]DenialEntry, error)
	Flush() error
	Close() error
}

type AttemptEntry struct {
	ID        int64
	At        time.Time
	Path      string
	Operation string
	Outcome   string
	RawValue  string
	HasValue  bool
	Latency   time.Duration
	Detail    string
}

type DenialEntry struct {
	ID            int64
	At            time.Time
	SourceContext string
	TargetContext string
	TargetClass   string
	Permission    string
	RawLine       string
}
