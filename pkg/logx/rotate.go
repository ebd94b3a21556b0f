package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultLogFileName is the name of the active log file inside the log directory.
const DefaultLogFileName = "spectra.log"

// RotatingFile is an io.WriteCloser that rotates once the file exceeds maxBytes,
// keeping up to backups older files (spectra.log.1 ... spectra.log.N).
type RotatingFile struct {
	file     *os.File
	path     string
	size     int64
	maxBytes int64
	backups  int
	mu       sync.Mutex
}

// OpenRotatingFile opens (or creates) path for appending.
func OpenRotatingFile(path string, maxBytes int64, backups int) (*RotatingFile, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be positive")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rf := &RotatingFile{path: path, maxBytes: maxBytes, backups: backups}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *RotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", r.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file %s: %w", r.path, err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate shifts spectra.log.N-1 -> .N ... spectra.log -> .1 and reopens.
func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file for rotation: %w", err)
	}
	r.file = nil

	if r.backups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", r.path, r.backups))
		for i := r.backups - 1; i >= 1; i-- {
			src := fmt.Sprintf("%s.%d", r.path, i)
			if _, err := os.Stat(src); err == nil {
				_ = os.Rename(src, fmt.Sprintf("%s.%d", r.path, i+1))
			}
		}
		if err := os.Rename(r.path, r.path+".1"); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	} else if err := os.Truncate(r.path, 0); err != nil {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}

	return r.open()
}

// Close closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

//nolint:gochecknoglobals // the process-wide log file opened by InitializeLogFile
var (
	activeFile   *RotatingFile
	activeFileMu sync.Mutex
)

// InitializeLogFile routes all loggers to <logsDir>/spectra.log, rotating at maxSizeMB
// with the given number of backups. With tee set, output also goes to stderr.
func InitializeLogFile(logsDir string, maxSizeMB, backups int, tee bool) error {
	rf, err := OpenRotatingFile(filepath.Join(logsDir, DefaultLogFileName), int64(maxSizeMB)*1024*1024, backups)
	if err != nil {
		return err
	}

	activeFileMu.Lock()
	prev := activeFile
	activeFile = rf
	activeFileMu.Unlock()

	if tee {
		SetOutput(io.MultiWriter(os.Stderr, rf))
	} else {
		SetOutput(rf)
	}

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// CloseLogFile restores stderr output and closes the log file.
func CloseLogFile() error {
	activeFileMu.Lock()
	rf := activeFile
	activeFile = nil
	activeFileMu.Unlock()

	SetOutput(nil)
	if rf == nil {
		return nil
	}
	return rf.Close()
}
