package ctl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Listener reads command lines from the control FIFO without blocking
// the supervisor loop. Short reads are buffered across polls; only
// complete newline-terminated lines are handed out.
type Listener struct {
	path string
	f    *os.File
	buf  bytes.Buffer
}

// OpenListener creates the FIFO at path (mode 0666) if missing and opens
// it for nonblocking reads.
func OpenListener(path string) (*Listener, error) {
	fi, err := os.Stat(path)
	switch {
	case err == nil:
		if fi.Mode()&fs.ModeNamedPipe == 0 {
			return nil, fmt.Errorf("%s exists and is not a fifo", path)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := unix.Mkfifo(path, 0o666); err != nil {
			return nil, fmt.Errorf("creating control fifo %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("stat control fifo %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("opening control fifo %s: %w", path, err)
	}
	return &Listener{path: path, f: f}, nil
}

// Poll reads whatever is available and returns the complete lines
// assembled so far. It never blocks: with no writer or no pending data
// it returns nil immediately.
//
// The runtime poller turns reads on a pollable fifo into blocking waits
// even with O_NONBLOCK set at open, so each poll reads under a
// one-millisecond deadline instead.
func (l *Listener) Poll() ([]string, error) {
	// A short deadline, not an immediate one: an already-expired
	// deadline fails the read before it fetches available data.
	_ = l.f.SetReadDeadline(time.Now().Add(time.Millisecond))
	var chunk [4096]byte
	for {
		n, err := l.f.Read(chunk[:])
		if n > 0 {
			l.buf.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.EAGAIN) {
				break
			}
			return l.takeLines(), fmt.Errorf("reading control fifo: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return l.takeLines(), nil
}

func (l *Listener) takeLines() []string {
	var lines []string
	for {
		raw, err := l.buf.ReadString('\n')
		if err != nil {
			// Partial line; keep it for the next poll.
			l.buf.Reset()
			l.buf.WriteString(raw)
			break
		}
		line := string(bytes.TrimSpace([]byte(raw)))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Path returns the FIFO path.
func (l *Listener) Path() string { return l.path }

// Close closes the FIFO reader.
func (l *Listener) Close() error { return l.f.Close() }
