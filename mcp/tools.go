package mcp

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadFileRange returns lines start through end of the file at path.
// Line numbers are 1-indexed and inclusive; end is clamped to the file's
// length. start must be at least 1 and no greater than end.
func ReadFileRange(path string, start, end int) (string, error) {
	if start < 1 {
		return "", fmt.Errorf("start_line must be at least 1, got %d", start)
	}
	if start > end {
		return "", fmt.Errorf("start_line %d is greater than end_line %d", start, end)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			return "", fmt.Errorf("permission denied: %s", path)
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < start {
			continue
		}
		if lineNo > end {
			break
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	if lineNo < start {
		return "", fmt.Errorf("start_line %d is beyond end of file (%d lines)", start, lineNo)
	}
	return b.String(), nil
}
