package journal

import (
	"context"

	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
	"codeberg.org/mutker/battmon/internal/sysfs"
)

// New opens the journal database, or returns a no-op journal when cfg
// is disabled.
func New(cfg Config, log logger.Logger) (Journal, error) {
	errFactory := errors.New()

	if log == nil {
		log = logger.Nop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Journal disabled, using no-op journal")
		return noopJournal{}, nil
	}

	repo, err := newRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create journal repository")
		return nil, err
	}

	return repo, nil
}

type noopJournal struct{}

func (noopJournal) Record(sysfs.ReadAttempt) {}

func (noopJournal) RecordDenials(context.Context, []avc.Denial) error { return nil }

func (noopJournal) Attempts(context.Context, string, int) ([]AttemptEntry, error) {
	return nil, nil
}

func (noopJournal) Denials(context.Context) ([]DenialEntry, error) { return nil, nil }

func (noopJournal) Flush() error { return nil }

func (noopJournal) Close() error { return nil }

// RecordingSource passes denials from Source through unchanged and
// records them in Journal. Journal failures are logged only.
type RecordingSource struct {
	Source  avc.Source
	Journal Journal
	Logger  logger.Logger
}

func (s RecordingSource) Denials(ctx context.Context) ([]avc.Denial, error) {
	denials, err := s.Source.Denials(ctx)

	if len(denials) > 0 && s.Journal != nil {
		if jerr := s.Journal.RecordDenials(ctx, denials); jerr != nil {
			log := s.Logger
			if log == nil {
				log = logger.Nop()
			}
			log.Warn().Err(jerr).Int("denials", len(denials)).Msg("Failed to journal denials")
		}
	}

	return denials, err
}
