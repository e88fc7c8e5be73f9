package sysfs

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// maxLineBytes bounds a single read; sysfs attributes are one short line.
const maxLineBytes = 4096

// FileReader reads sysfs attributes directly from the filesystem.
type FileReader struct {
	now func() time.Time
}

func NewFileReader() *FileReader {
	return &FileReader{now: time.Now}
}

// NewFileReaderWithClock is NewFileReader with an injected time source.
func NewFileReaderWithClock(now func() time.Time) *FileReader {
	return &FileReader{now: now}
}

// Read checks existence, then readability, then reads one line. It never
// retries.
func (r *FileReader) Read(path string) ReadAttempt {
	start := r.now()
	attempt := ReadAttempt{Path: path, Operation: OpRead, At: start}

	if outcome, detail, ok := r.precheck(path, unix.R_OK); !ok {
		return r.finish(attempt, start, outcome, detail)
	}

	f, err := os.Open(path)
	if err != nil {
		return r.finish(attempt, start, classify(err), err.Error())
	}
	defer f.Close()

	line, err := bufio.NewReader(io.LimitReader(f, maxLineBytes)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return r.finish(attempt, start, classify(err), err.Error())
	}

	value := strings.TrimSpace(line)
	if value == "" {
		return r.finish(attempt, start, Empty, "zero-length content")
	}

	attempt.RawValue = value
	attempt.HasValue = true

	return r.finish(attempt, start, Success, "")
}

// Write stores value into an existing attribute.
func (r *FileReader) Write(path, value string) ReadAttempt {
	start := r.now()
	attempt := ReadAttempt{Path: path, Operation: OpWrite, At: start}

	if outcome, detail, ok := r.precheck(path, unix.W_OK); !ok {
		return r.finish(attempt, start, outcome, detail+" (value="+value+")")
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return r.finish(attempt, start, classify(err), err.Error())
	}

	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return r.finish(attempt, start, classify(err), err.Error())
	}

	if err := f.Close(); err != nil {
		return r.finish(attempt, start, classify(err), err.Error())
	}

	attempt.RawValue = value
	attempt.HasValue = true

	return r.finish(attempt, start, Success, "")
}

func (r *FileReader) precheck(path string, mode uint32) (Outcome, string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return classify(err), err.Error(), false
	}
	if info.IsDir() {
		return IOError, "is a directory", false
	}

	if err := unix.Access(path, mode); err != nil {
		if isPermission(err) {
			return PermissionDenied, "permission denied (access check)", false
		}
		return IOError, err.Error(), false
	}

	return Success, "", true
}

func (r *FileReader) finish(attempt ReadAttempt, start time.Time, outcome Outcome, detail string) ReadAttempt {
	attempt.Outcome = outcome
	attempt.Detail = detail
	attempt.Latency = r.now().Sub(start)

	return attempt
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound
	case isPermission(err):
		return PermissionDenied
	default:
		return IOError
	}
}

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EPERM)
}
