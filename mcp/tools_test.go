package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.c")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))
	return path
}

func TestReadFileRange(t *testing.T) {
	path := writeLines(t, "one\ntwo\nthree\nfour\nfive\n")

	tests := []struct {
		name    string
		start   int
		end     int
		want    string
		wantErr string
	}{
		{
			name:  "middle range",
			start: 2,
			end:   4,
			want:  "two\nthree\nfour\n",
		},
		{
			name:  "single line",
			start: 3,
			end:   3,
			want:  "three\n",
		},
		{
			name:  "whole file",
			start: 1,
			end:   5,
			want:  "one\ntwo\nthree\nfour\nfive\n",
		},
		{
			name:  "end clamped to file length",
			start: 4,
			end:   100,
			want:  "four\nfive\n",
		},
		{
			name:    "start below one",
			start:   0,
			end:     3,
			wantErr: "start_line must be at least 1",
		},
		{
			name:    "start after end",
			start:   4,
			end:     2,
			wantErr: "greater than end_line",
		},
		{
			name:    "start beyond end of file",
			start:   10,
			end:     20,
			wantErr: "beyond end of file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadFileRange(path, tt.start, tt.end)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFileRangeMissingFile(t *testing.T) {
	_, err := ReadFileRange(filepath.Join(t.TempDir(), "absent.c"), 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestReadFileRangePermissionDenied(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores file permissions")
	}

	path := writeLines(t, "secret\n")
	require.NoError(t, os.Chmod(path, 0000))

	_, err := ReadFileRange(path, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestReadFileRangeNoTrailingNewline(t *testing.T) {
	path := writeLines(t, "one\ntwo")

	got, err := ReadFileRange(path, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", got)
}
