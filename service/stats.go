package service

import (
	"time"

	"github.com/rs/zerolog"
)

// Stats is the timing report of one Run.
type Stats struct {
	Messages uint64
	Total    time.Duration
	Apply    time.Duration
	Snapshot time.Duration
}

type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeSlow      Grade = "needs optimization"
)

// PerMessage is the mean wall time per message.
func (s Stats) PerMessage() time.Duration {
	if s.Messages == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Messages)
}

func (s Stats) MessagesPerSecond() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Messages) / s.Total.Seconds()
}

// Grade classifies the mean cost per message: under a microsecond,
// under ten, or slower.
func (s Stats) Grade() Grade {
	if s.Messages == 0 {
		return GradeExcellent
	}
	us := float64(s.Total) / float64(time.Microsecond) / float64(s.Messages)
	switch {
	case us < 1:
		return GradeExcellent
	case us < 10:
		return GradeGood
	default:
		return GradeSlow
	}
}

// Log writes the report as a single event.
func (s Stats) Log(log zerolog.Logger) {
	level := zerolog.InfoLevel
	if s.Grade() == GradeSlow {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).Uint64("messages", s.Messages).
		Dur("total", s.Total).
		Dur("apply", s.Apply).
		Dur("snapshot", s.Snapshot).
		Dur("per_message", s.PerMessage()).
		Float64("msgs_per_sec", s.MessagesPerSecond()).
		Str("grade", string(s.Grade())).
		Msg("performance report")
}
