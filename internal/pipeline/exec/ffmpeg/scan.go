// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import "bytes"

// scanLinesWithCR is a bufio.SplitFunc that treats both \n and \r as
// line terminators. ffmpeg rewrites its status line with bare carriage
// returns, so the default line splitter would buffer the whole progress
// stream as one line until exit.
func scanLinesWithCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		token = data[:i]
		// Swallow a \r\n pair as one terminator.
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, token, nil
		}
		return i + 1, token, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
