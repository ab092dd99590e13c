package pacer

import "go.uber.org/atomic"

// Stats — снимок счётчиков пейсера.
type Stats struct {
	Predictions     uint64
	MissedFrames    uint64 // сумма пропущенных периодов по всем предсказаниям
	FeedbackApplied uint64
	FeedbackDropped uint64 // устаревшие или неизвестные id кадров
}

// counters читаются без мьютекса пейсера (мониторинг из другой горутины).
type counters struct {
	predictions     atomic.Uint64
	missedFrames    atomic.Uint64
	feedbackApplied atomic.Uint64
	feedbackDropped atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Predictions:     c.predictions.Load(),
		MissedFrames:    c.missedFrames.Load(),
		FeedbackApplied: c.feedbackApplied.Load(),
		FeedbackDropped: c.feedbackDropped.Load(),
	}
}
