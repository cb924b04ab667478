package ripper

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// minWriteBufSize and maxWriteBufSize clamp the configured write buffer to avoid
// tiny writes (no benefit) or very large buffers (memory and latency).
const (
	minWriteBufSize = 32 * 1024       // 32 KiB
	maxWriteBufSize = 4 * 1024 * 1024 // 4 MiB
)

// trackWriter records a single title into a temp file next to its
// destination. The file only takes the destination name on close, and only
// if no longer recording of the same title is already there.
type trackWriter struct {
	dest   string
	f      *os.File
	w      *bufio.Writer
	logger *slog.Logger

	// head holds the start of the track until an MP3 frame boundary is found.
	head    []byte
	synced  bool
	written int64
}

func newTrackWriter(dest string, bufSize int, logger *slog.Logger) (*trackWriter, error) {
	if bufSize < minWriteBufSize {
		bufSize = minWriteBufSize
	}
	if bufSize > maxWriteBufSize {
		bufSize = maxWriteBufSize
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(dir, "*.mp3.tmp")
	if err != nil {
		return nil, err
	}

	return &trackWriter{
		dest:   dest,
		f:      f,
		w:      bufio.NewWriterSize(f, bufSize),
		logger: logger,
		head:   make([]byte, 0, 4096),
	}, nil
}

func (t *trackWriter) Write(p []byte) (int, error) {
	if t.synced {
		n, err := t.w.Write(p)
		t.written += int64(n)
		return n, err
	}

	// Drop the tail of the previous frame so the file starts on a frame header.
	t.head = append(t.head, p...)
	if pos := findMP3FrameSync(t.head); pos >= 0 {
		t.head = t.head[pos:]
	} else if len(t.head) <= maxSyncSearch {
		return len(p), nil
	} else {
		t.logger.Warn("no MP3 frame sync found in first 8KB, writing anyway", "path", t.dest)
	}

	t.synced = true
	n, err := t.w.Write(t.head)
	t.written += int64(n)
	t.head = nil
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close flushes the recording and commits it to its destination.
func (t *trackWriter) Close() error {
	var errs []error

	if !t.synced && len(t.head) > 0 {
		n, err := t.w.Write(t.head)
		t.written += int64(n)
		errs = append(errs, err)
	}
	errs = append(errs, t.w.Flush(), t.f.Sync(), t.f.Close())

	if err := errors.Join(errs...); err != nil {
		_ = os.Remove(t.f.Name())
		return err
	}

	commitTempFile(t.logger, t.f.Name(), t.dest)
	return nil
}

// commitTempFile renames tempPath to destPath only if dest doesn't exist or
// the temp file is larger (so a previous crash doesn't overwrite a good recording).
func commitTempFile(logger *slog.Logger, tempPath, destPath string) {
	tempInfo, err := os.Stat(tempPath)
	if err != nil {
		logger.Error("error stating temp file", "err", err, "path", tempPath)
		_ = os.Remove(tempPath)
		return
	}

	destInfo, err := os.Stat(destPath)
	switch {
	case err != nil && !os.IsNotExist(err):
		logger.Error("error stating dest file", "err", err, "path", destPath)
		_ = os.Remove(tempPath)
		return
	case err == nil && tempInfo.Size() <= destInfo.Size():
		_ = os.Remove(tempPath)
		logger.Debug("discarded shorter recording", "path", destPath, "temp_size", tempInfo.Size(), "existing_size", destInfo.Size())
		return
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		logger.Error("error renaming temp to dest", "err", err, "temp", tempPath, "dest", destPath)
		_ = os.Remove(tempPath)
		return
	}
	logger.Debug("saved recording", "path", destPath, "size", tempInfo.Size())
}

// sanitizeName makes a stream or track title safe to use as a single path element.
func sanitizeName(name, fallback string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if name == "" {
		return fallback
	}
	return name
}

// ByteCountIEC formats b using binary prefixes, e.g. 1.5 MiB.
func ByteCountIEC(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
