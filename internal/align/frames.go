// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package align trims a bookended capture against its reference: it
// scans the capture for white bookend runs, derives the content window
// between the first and last run, and produces the frame-matched pair
// of clips the scoring stage consumes.
package align

import (
	"fmt"
	"io"
)

// Sample is one decimated grayscale frame reduced to its mean
// luminance.
type Sample struct {
	// Index is the frame's position in the original video, not the
	// sample ordinal.
	Index int64
	Mean  float64
}

// FrameSource reads 8-bit grayscale frames from a rawvideo stream and
// reduces each to a luminance sample. The stream is produced by the
// encoder's decimating gray pipe, so consecutive frames here are
// stride frames apart in the source video.
type FrameSource struct {
	r      io.Reader
	buf    []byte
	stride int64
	next   int64
}

// NewFrameSource wraps a rawvideo stream of width x height gray frames
// sampled every stride frames.
func NewFrameSource(r io.Reader, width, height, stride int) (*FrameSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %dx%d", width, height)
	}
	if stride < 1 {
		stride = 1
	}
	return &FrameSource{
		r:      r,
		buf:    make([]byte, width*height),
		stride: int64(stride),
	}, nil
}

// Next returns the following sample. io.EOF signals a clean end of
// stream; a truncated final frame is dropped and reads as EOF too.
func (s *FrameSource) Next() (Sample, error) {
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Sample{}, err
	}

	var sum uint64
	for _, b := range s.buf {
		sum += uint64(b)
	}
	sample := Sample{
		Index: s.next * s.stride,
		Mean:  float64(sum) / float64(len(s.buf)),
	}
	s.next++
	return sample, nil
}
