package framepacing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plutovr/electric-maple/ems-pacer/internal/config"
	"github.com/plutovr/electric-maple/ems-pacer/internal/feedback"
	"github.com/plutovr/electric-maple/ems-pacer/internal/logger"
	"github.com/plutovr/electric-maple/ems-pacer/internal/monoclock"
	"github.com/plutovr/electric-maple/ems-pacer/internal/pacer"
	"github.com/plutovr/electric-maple/ems-pacer/internal/simclient"
)

// Summary — итог прогона.
type Summary struct {
	SessionID    string
	Frames       int
	LastFrameID  int64
	Elapsed      time.Duration // по часам прогона (виртуальным или системным)
	Pacer        pacer.Stats
	Client       simclient.Stats
	DecodeErrors uint64
	// Смещение часов клиент→сервер на конец прогона.
	OffsetNs    int64
	OffsetValid bool
}

func (s Summary) String() string {
	offset := "неизвестно"
	if s.OffsetValid {
		offset = time.Duration(s.OffsetNs).String()
	}
	return fmt.Sprintf("сессия %s: кадров=%d (последний id %d) за %v, пропущено периодов=%d, "+
		"отчётов применено=%d отброшено=%d потеряно=%d битых=%d, вытеснено на клиенте=%d, смещение часов=%s",
		s.SessionID, s.Frames, s.LastFrameID, s.Elapsed, s.Pacer.MissedFrames,
		s.Pacer.FeedbackApplied, s.Pacer.FeedbackDropped, s.Client.Lost, s.DecodeErrors,
		s.Client.Superseded, offset)
}

// RunSimulation гоняет замкнутый контур пейсер → кодер → модель клиента → отчёты → пейсер
// до cfg.Loop.Frames кадров (0 = до отмены ctx). При отмене возвращает накопленный итог и ctx.Err().
func RunSimulation(ctx context.Context, cfg *config.Config, clock monoclock.Clock) (Summary, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	sessionID := uuid.New()
	summary := Summary{SessionID: sessionID.String()}
	start := clock.NowNs()

	p := pacer.New(cfg.Pacer.Params(), cfg.Pacer.EstimatedFramePeriodNs, start)
	defer p.Close()

	client, err := simclient.New(cfg.Simulation.Params(p.Params().DisplayPeriodNs))
	if err != nil {
		return summary, err
	}
	handler := feedback.NewHandler(p)
	enc := NewEncoder(clock, PacketSinkFunc(client.Receive), cfg.Simulation.ExtensionID,
		sessionID.ID(), cfg.Loop.RenderTimeNs())
	loop := NewLoop(p, clock, enc)

	logger.Info("сессия %s: кадров=%d realtime=%v потеря отчётов=%.2f",
		summary.SessionID, cfg.Loop.Frames, cfg.Loop.Realtime, cfg.Simulation.FeedbackLoss)

	finish := func() Summary {
		summary.Elapsed = time.Duration(clock.NowNs() - start)
		summary.Pacer = p.Stats()
		summary.Client = client.Stats()
		summary.DecodeErrors = handler.DecodeErrors()
		summary.OffsetNs, _, summary.OffsetValid = p.ClientToServerTimeOffset()
		return summary
	}

	for cfg.Loop.Frames <= 0 || summary.Frames < cfg.Loop.Frames {
		for _, msg := range client.Deliver(clock.NowNs()) {
			if err := handler.HandleMessage(msg); err != nil {
				logger.Error("отчёт клиента: %v", err)
			}
		}

		pred, err := loop.Step(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return finish(), err
			}
			return finish(), fmt.Errorf("кадр %d: %w", pred.FrameID, err)
		}
		summary.Frames++
		summary.LastFrameID = pred.FrameID
		if pred.MissedFrames > 0 {
			logger.Debug("кадр %d: пропущено периодов %d", pred.FrameID, pred.MissedFrames)
		}

		if cfg.Loop.StatsEvery > 0 && summary.Frames%cfg.Loop.StatsEvery == 0 {
			st := p.Stats()
			logger.Info("кадр %d: пропущено=%d отчётов=%d отброшено=%d в пути=%d",
				pred.FrameID, st.MissedFrames, st.FeedbackApplied, st.FeedbackDropped, client.Pending())
		}
	}
	return finish(), nil
}
