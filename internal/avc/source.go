package avc

import (
	"bytes"
	"context"
	"io"
	"os"

	"codeberg.org/mutker/battmon/internal/command"
	"codeberg.org/mutker/battmon/internal/errors"
)

const (
	ErrReadSource = errors.ErrorCode("avc_read_source_failed")
)

// Source supplies raw audit text.
type Source interface {
	Denials(ctx context.Context) ([]Denial, error)
}

// FileSource reads a saved audit or kernel log.
type FileSource struct {
	Path string
}

func (s FileSource) Denials(_ context.Context) ([]Denial, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.New().Wrap(ErrReadSource, err)
	}
	defer f.Close()

	denials, err := ParseReader(f)
	if err != nil {
		return denials, errors.New().Wrap(ErrReadSource, err)
	}

	return denials, nil
}

// CommandSource captures the output of a log command such as dmesg.
type CommandSource struct {
	Runner command.Runner
	Name   string
	Args   []string
}

func (s CommandSource) Denials(ctx context.Context) ([]Denial, error) {
	runner := s.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}

	out, err := runner.Output(ctx, s.Name, s.Args...)
	// dmesg piped through grep exits non-zero on no match; keep whatever
	// was captured.
	denials, _ := ParseReader(bytes.NewReader(out))
	if err != nil && len(denials) == 0 {
		return nil, errors.New().Wrap(ErrReadSource, err)
	}

	return denials, nil
}

// ReaderSource parses an already open stream, e.g. stdin.
type ReaderSource struct {
	R io.Reader
}

func (s ReaderSource) Denials(_ context.Context) ([]Denial, error) {
	denials, err := ParseReader(s.R)
	if err != nil {
		return denials, errors.New().Wrap(ErrReadSource, err)
	}

	return denials, nil
}
