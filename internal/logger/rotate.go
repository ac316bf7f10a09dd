package logger

import (
	"fmt"
	"os"
	"sync"
)

// Rotator is an io.Writer that rotates the target file once it grows past
// MaxBytes, keeping MaxBackups numbered backups (trading.log.1 is newest).
type Rotator struct {
	Filename   string
	MaxBytes   int64
	MaxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.size+int64(len(p)) > r.MaxBytes {
		if err := r.rotate(); err != nil {
			// Keep writing to the oversized file rather than dropping lines.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *Rotator) open() error {
	info, err := os.Stat(r.Filename)
	if os.IsNotExist(err) {
		return r.create()
	}
	if err != nil {
		return err
	}
	f, err := os.OpenFile(r.Filename, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) create() error {
	f, err := os.OpenFile(r.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

// rotate shifts trading.log.N -> trading.log.N+1, the live file to .1, and
// reopens a fresh live file.
func (r *Rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	for i := r.MaxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", r.Filename, i)
		if _, err := os.Stat(from); os.IsNotExist(err) {
			continue
		}
		os.Rename(from, fmt.Sprintf("%s.%d", r.Filename, i+1))
	}
	if _, err := os.Stat(r.Filename); err == nil {
		os.Rename(r.Filename, r.Filename+".1")
	}
	return r.create()
}
