package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStatsGrades(t *testing.T) {
	cases := []struct {
		msgs  uint64
		total time.Duration
		want  Grade
	}{
		{0, 0, GradeExcellent},
		{1000, 500 * time.Microsecond, GradeExcellent},
		{1000, 5 * time.Millisecond, GradeGood},
		{1000, 50 * time.Millisecond, GradeSlow},
	}
	for _, c := range cases {
		s := Stats{Messages: c.msgs, Total: c.total}
		assert.Equal(t, c.want, s.Grade(), "%d msgs in %s", c.msgs, c.total)
	}
}

func TestStatsRates(t *testing.T) {
	s := Stats{Messages: 2000, Total: time.Second}
	assert.Equal(t, 500*time.Microsecond, s.PerMessage())
	assert.InDelta(t, 2000.0, s.MessagesPerSecond(), 1e-9)

	var zero Stats
	assert.Zero(t, zero.PerMessage())
	assert.Zero(t, zero.MessagesPerSecond())
}

func TestStatsLog(t *testing.T) {
	var buf bytes.Buffer
	Stats{Messages: 10, Total: time.Second}.Log(zerolog.New(&buf))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"grade":"needs optimization"`)
	assert.Contains(t, buf.String(), `"messages":10`)
}

func TestStatsLogFastRunAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Stats{Messages: 1000, Total: 500 * time.Microsecond}.Log(zerolog.New(&buf))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")), "one report line")
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.Contains(t, buf.String(), `"grade":"excellent"`)
}
