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

const (
	maxLineBytes        = 1 << 20
	defaultPollInterval = 250 * time.Millisecond
)

// Tail returns up to limit trailing lines of path and the file size at the
// time of reading. A missing file yields no lines and offset 0.
func Tail(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scanLines(file, func(line string) {
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// FollowOptions tunes Follow.
type FollowOptions struct {
	// Offset is where reading starts, usually the offset returned by Tail.
	Offset int64
	// Poll is the interval between size checks; zero uses 250ms.
	Poll time.Duration
	// Match keeps only lines containing this substring when non-empty.
	Match string
}

// Follow emits lines appended to path after opts.Offset until ctx is done.
// It returns nil when ctx ends.
func Follow(ctx context.Context, path string, opts FollowOptions, emit func(string)) error {
	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPollInterval
	}
	offset := opts.Offset
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, func(line string) {
			if Matches(line, opts.Match) {
				emit(line)
			}
		})
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

// Matches reports whether line contains match; an empty match keeps every line.
func Matches(line, match string) bool {
	return match == "" || strings.Contains(line, match)
}

// readFrom emits complete lines after offset and returns the new offset.
// A file shorter than offset was rotated and is read from the start.
func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
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
	read, err := scanLines(file, emit)
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scanLines emits newline-terminated lines from r and returns the number of
// bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, emit func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			text := strings.TrimRight(line, "\r\n")
			if len(text) > maxLineBytes {
				text = text[:maxLineBytes]
			}
			emit(text)
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}
