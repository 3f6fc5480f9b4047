package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Filter keeps lines containing every non-empty term.
type Filter struct {
	Terms []string
}

// Keep reports whether line passes the filter.
func (f Filter) Keep(line string) bool {
	for _, term := range f.Terms {
		if term != "" && !strings.Contains(line, term) {
			return false
		}
	}
	return true
}

// Reader tails one log file.
type Reader struct {
	Path   string
	Filter Filter
	// Poll is the Follow interval; zero means 250ms.
	Poll time.Duration
}

// Last returns up to n trailing lines that pass the filter, plus the offset
// just past the end of the file. A missing file yields no lines and offset 0.
func (r Reader) Last(n int) ([]string, int64, error) {
	file, err := os.Open(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if info, err := file.Stat(); err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	} else if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", r.Path)
	}

	var ring []string
	if n > 0 {
		ring = make([]string, 0, n)
	}
	next := 0
	err = scanLines(file, func(line string) {
		if n <= 0 || !r.Filter.Keep(line) {
			return
		}
		if len(ring) < n {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % n
	})
	if err != nil {
		return nil, 0, err
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	if len(ring) < n || next == 0 {
		return ring, offset, nil
	}
	return append(ring[next:], ring[:next]...), offset, nil
}

// Follow emits lines appended after offset until ctx ends. It returns nil on
// cancellation.
func (r Reader) Follow(ctx context.Context, offset int64, emit func(string)) error {
	poll := r.Poll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := r.readFrom(offset, emit)
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r Reader) readFrom(offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	// Only complete lines are consumed; a partial trailing line is re-read
	// on the next poll.
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if r.Filter.Keep(line) {
			emit(line)
		}
	}
}

func scanLines(rd io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	return nil
}
