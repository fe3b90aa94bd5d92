package telemetry

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line      string
		want      Reading
		malformed bool
	}{
		{"DIST:12.5", Distance(12.5), false},
		{"DIST:0", Distance(0), false},
		{"DIST:250\r", Distance(250), false},
		{"DIST: 19.99", Distance(19.99), false},
		{"DIST:INF", NoObstacle, false},
		{"GARBAGE", NoReading, false},
		{"", NoReading, false},
		{"dist:12", NoReading, false},
		{"DIST:", NoReading, true},
		{"DIST:abc", NoReading, true},
		{"DIST:-3", NoReading, true},
		{"DIST:NaN", NoReading, true},
		{"DIST:+Inf", NoReading, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.line)
		if tt.malformed {
			assert.ErrorIs(t, err, ErrMalformed, "Parse(%q)", tt.line)
		} else {
			assert.NoError(t, err, "Parse(%q)", tt.line)
		}
		assert.Equal(t, tt.want, got, "Parse(%q)", tt.line)
	}
}

func TestReading_Effective(t *testing.T) {
	assert.Equal(t, NoObstacle, NoReading.Effective())
	assert.Equal(t, NoObstacle, NoObstacle.Effective())
	assert.Equal(t, Distance(7), Distance(7).Effective())
}

func TestReading_Centimeters(t *testing.T) {
	assert.Equal(t, 7.0, Distance(7).Centimeters())
	assert.True(t, math.IsInf(NoObstacle.Centimeters(), 1))
	assert.True(t, math.IsInf(NoReading.Centimeters(), 1))
}

type fakeSource struct {
	lines []string
	err   error
}

func (f *fakeSource) TryReadLine() (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if len(f.lines) == 0 {
		return "", false, nil
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, true, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReader_Read(t *testing.T) {
	src := &fakeSource{lines: []string{"DIST:12.5", "DIST:INF", "GARBAGE", "DIST:x"}}
	r := NewReader(src, quietLogger())

	assert.Equal(t, Distance(12.5), r.Read())
	assert.Equal(t, NoObstacle, r.Read())
	assert.Equal(t, NoReading, r.Read())
	assert.Equal(t, NoReading, r.Read())
	// nothing buffered
	assert.Equal(t, NoReading, r.Read())
}

func TestReader_ReadErrorIsNotFatal(t *testing.T) {
	r := NewReader(&fakeSource{err: errors.New("i/o error")}, quietLogger())

	require.NotPanics(t, func() {
		assert.Equal(t, NoReading, r.Read())
	})
}
