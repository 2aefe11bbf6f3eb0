// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scanAll(t *testing.T, input string) []string {
	t.Helper()
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanLinesWithCR)
	var out []string
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	assert.NoError(t, scanner.Err())
	return out
}

func TestScanLinesWithCR(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newlines", "a\nb\n", []string{"a", "b"}},
		{"carriage returns", "a\rb\r", []string{"a", "b"}},
		{"crlf pairs", "a\r\nb\r\n", []string{"a", "b"}},
		{
			"status line rewrites",
			"frame=    1 fps=0.0\rframe=   30 fps= 30\rframe=   60 fps= 30\n",
			[]string{"frame=    1 fps=0.0", "frame=   30 fps= 30", "frame=   60 fps= 30"},
		},
		{"remainder without terminator", "tail", []string{"tail"}},
		{"mixed terminators", "one\ntwo\rthree\r\nfour", []string{"one", "two", "three", "four"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scanAll(t, tt.input))
		})
	}
}
