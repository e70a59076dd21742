package utils

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

const (
	// DefaultTailStride is the block size used when scanning a file backwards.
	DefaultTailStride int64 = 4096
	// MaxLineBytes bounds how much of a single line is ever buffered.
	MaxLineBytes = 1 << 20
)

// ErrLineTooLong is returned when a line exceeds MaxLineBytes.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// LastLine returns the last non-blank line of r, which is size bytes long.
// It reads backwards in blocks of stride bytes and stops as soon as a line
// break before the final line is found, so only the tail of the file is read.
// When fewer than stride bytes remain the scan continues from offset 0.
// Line terminators ("\n" or "\r\n") are not part of the result.
func LastLine(r io.ReaderAt, size, stride int64) (string, error) {
	if stride <= 0 {
		stride = DefaultTailStride
	}

	var tail []byte
	pos := size
	for pos > 0 {
		n := stride
		if n > pos {
			n = pos
		}
		pos -= n

		buf := make([]byte, n)
		if _, err := r.ReadAt(buf, pos); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		tail = append(buf, tail...)

		trimmed := bytes.TrimRight(tail, "\r\n")
		if len(trimmed) == 0 {
			// Only line breaks so far; nothing worth keeping.
			tail = nil
			continue
		}
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			return string(bytes.TrimRight(trimmed[i+1:], "\r")), nil
		}
		if len(trimmed) > MaxLineBytes {
			return "", ErrLineTooLong
		}
	}

	return string(bytes.TrimRight(tail, "\r\n")), nil
}

// FirstLine returns the first line of r without its terminator.
// An empty reader yields an empty string and no error.
func FirstLine(r io.Reader) (string, error) {
	br := bufio.NewReader(io.LimitReader(r, MaxLineBytes+1))
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) && len(line) > MaxLineBytes {
		return "", ErrLineTooLong
	}
	return string(bytes.TrimRight([]byte(line), "\r\n")), nil
}
