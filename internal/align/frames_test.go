// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package align

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSourceReducesFramesToMeanLuma(t *testing.T) {
	// Three 4x2 frames sampled at stride 5: white, black, mixed.
	var stream bytes.Buffer
	stream.Write(bytes.Repeat([]byte{255}, 8))
	stream.Write(bytes.Repeat([]byte{0}, 8))
	stream.Write([]byte{255, 255, 255, 255, 45, 45, 45, 45})

	src, err := NewFrameSource(&stream, 4, 2, 5)
	require.NoError(t, err)

	s, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Index)
	assert.Equal(t, 255.0, s.Mean)

	s, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Index)
	assert.Equal(t, 0.0, s.Mean)

	s, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.Index)
	assert.Equal(t, 150.0, s.Mean)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameSourceDropsTruncatedTail(t *testing.T) {
	// One full frame plus three stray bytes from a cut-off encoder.
	data := append(bytes.Repeat([]byte{10}, 8), 99, 99, 99)

	src, err := NewFrameSource(bytes.NewReader(data), 4, 2, 1)
	require.NoError(t, err)

	s, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.Mean)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameSourceRejectsBadGeometry(t *testing.T) {
	_, err := NewFrameSource(bytes.NewReader(nil), 0, 2, 1)
	assert.Error(t, err)

	_, err = NewFrameSource(bytes.NewReader(nil), 4, -1, 1)
	assert.Error(t, err)
}

func TestFrameSourceStrideFloor(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 8)

	src, err := NewFrameSource(bytes.NewReader(data), 2, 2, 0)
	require.NoError(t, err)

	s, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Index)

	s, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Index)
}
