package util

import (
	"fmt"
	"strings"
)

// maxStderrLine caps the capture tool message quoted in errors.
const maxStderrLine = 200

// WrapError prefixes err with the operation that failed. A nil err stays nil.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// LastStderrLine returns the final non-blank line a capture tool such as
// arecord or FFmpeg wrote to stderr, which is where it reports why it quit.
func LastStderrLine(stderr string) string {
	rest := strings.TrimRight(stderr, " \t\r\n")
	line := rest
	if i := strings.LastIndexByte(rest, '\n'); i >= 0 {
		line = rest[i+1:]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxStderrLine {
		return line[:maxStderrLine] + "..."
	}
	return line
}
