package framepacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/plutovr/electric-maple/ems-pacer/internal/config"
	"github.com/plutovr/electric-maple/ems-pacer/internal/logger"
	"github.com/plutovr/electric-maple/ems-pacer/internal/monoclock"
	"github.com/plutovr/electric-maple/ems-pacer/internal/pacer"
	"github.com/plutovr/electric-maple/ems-pacer/internal/rtpext"
)

const t0 = uint64(1_000_000_000)

type recordingRenderer struct {
	clock monoclock.Clock
	preds []pacer.Prediction
	at    []uint64
	err   error
}

func (r *recordingRenderer) RenderFrame(ctx context.Context, pred pacer.Prediction) error {
	r.preds = append(r.preds, pred)
	r.at = append(r.at, r.clock.NowNs())
	return r.err
}

func init() {
	logger.Quiet = true
}

func TestLoop_Step(t *testing.T) {
	clock := monoclock.NewManual(t0)
	p := pacer.New(pacer.DefaultParams(), pacer.DisplayPeriodNs, t0)
	r := &recordingRenderer{clock: clock}
	loop := NewLoop(p, clock, r)

	for i := 0; i < 5; i++ {
		if _, err := loop.Step(context.Background()); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if r.preds[0].FrameID != 6 || r.preds[0].WakeUpTimeNs != t0 {
		t.Errorf("первый кадр: %+v", r.preds[0])
	}
	for i := range r.preds {
		if r.at[i] < r.preds[i].WakeUpTimeNs {
			t.Errorf("кадр %d отрендерен до пробуждения: %d < %d", r.preds[i].FrameID, r.at[i], r.preds[i].WakeUpTimeNs)
		}
		if i > 0 {
			if r.preds[i].FrameID != r.preds[i-1].FrameID+1 {
				t.Errorf("id не подряд: %d после %d", r.preds[i].FrameID, r.preds[i-1].FrameID)
			}
			if got := r.preds[i].WakeUpTimeNs - r.preds[i-1].WakeUpTimeNs; got != pacer.DisplayPeriodNs {
				t.Errorf("без обратной связи шаг пробуждения = период, got %d", got)
			}
		}
	}
}

func TestLoop_StepErrors(t *testing.T) {
	t.Run("render error", func(t *testing.T) {
		clock := monoclock.NewManual(t0)
		boom := errors.New("encoder busy")
		loop := NewLoop(pacer.New(pacer.Params{}, 0, t0), clock, &recordingRenderer{clock: clock, err: boom})
		if _, err := loop.Step(context.Background()); !errors.Is(err, boom) {
			t.Errorf("ожидали обёрнутую ошибку рендера, получили %v", err)
		}
	})
	t.Run("cancelled", func(t *testing.T) {
		clock := monoclock.NewManual(t0)
		r := &recordingRenderer{clock: clock}
		loop := NewLoop(pacer.New(pacer.Params{}, 0, t0), clock, r)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := loop.Step(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("ожидали context.Canceled, получили %v", err)
		}
		if len(r.preds) != 0 {
			t.Error("после отмены рендера быть не должно")
		}
	})
}

func TestEncoder_RenderFrame(t *testing.T) {
	clock := monoclock.NewManual(t0)
	var sent [][]byte
	var sentAt []uint64
	sink := PacketSinkFunc(func(nowNs uint64, packet []byte) error {
		sent = append(sent, packet)
		sentAt = append(sentAt, nowNs)
		return nil
	})
	enc := NewEncoder(clock, sink, rtpext.DefaultExtensionID, 0xfeed, 4_000_000)

	for id := int64(6); id < 9; id++ {
		if err := enc.RenderFrame(context.Background(), pacer.Prediction{FrameID: id, PredictedDisplayTimeNs: t0}); err != nil {
			t.Fatal(err)
		}
	}
	if len(sent) != 3 {
		t.Fatalf("отправлено %d пакетов", len(sent))
	}
	for i, raw := range sent {
		var pkt rtp.Packet
		if err := pkt.Unmarshal(raw); err != nil {
			t.Fatal(err)
		}
		id, ok := rtpext.FrameID(&pkt, rtpext.DefaultExtensionID)
		if !ok || id != int64(6+i) {
			t.Errorf("пакет %d: id=%d ok=%v", i, id, ok)
		}
		if pkt.SequenceNumber != uint16(i) || pkt.SSRC != 0xfeed || !pkt.Marker {
			t.Errorf("пакет %d: заголовок %+v", i, pkt.Header)
		}
		if pkt.Timestamp != 90_000 {
			t.Errorf("timestamp = %d, ожидали 90000 (1 с в 90 кГц)", pkt.Timestamp)
		}
		if want := t0 + uint64(i+1)*4_000_000; sentAt[i] != want {
			t.Errorf("пакет %d отправлен в %d, ожидали %d", i, sentAt[i], want)
		}
	}
}

func simConfig(frames int, loss float64) *config.Config {
	c := config.Default()
	c.Loop.Frames = frames
	c.Loop.StatsEvery = 50
	c.Simulation.FeedbackLoss = loss
	return c
}

// checkPacing проверяет, что цикл держит частоту дисплея клиента: пропусков мало,
// прогон занимает примерно frames периодов.
func checkPacing(t *testing.T, s Summary, frames int) {
	t.Helper()
	if s.Pacer.MissedFrames >= uint64(frames/10) {
		t.Errorf("пропущено периодов %d на %d кадров: %s", s.Pacer.MissedFrames, frames, s)
	}
	ideal := time.Duration(int64(frames) * pacer.DisplayPeriodNs)
	if s.Elapsed < ideal*8/10 || s.Elapsed > ideal*12/10 {
		t.Errorf("прогон занял %v, ожидали около %v: %s", s.Elapsed, ideal, s)
	}
}

func TestRunSimulation_ClosedLoop(t *testing.T) {
	const frames = 300
	cfg := simConfig(frames, 0)
	s, err := RunSimulation(context.Background(), cfg, monoclock.NewManual(t0))
	if err != nil {
		t.Fatalf("RunSimulation: %v", err)
	}
	if _, err := uuid.Parse(s.SessionID); err != nil {
		t.Errorf("SessionID %q: %v", s.SessionID, err)
	}
	if s.Frames != frames || s.LastFrameID != 6+frames-1 || s.Pacer.Predictions != frames {
		t.Errorf("кадры: %+v", s)
	}
	checkPacing(t, s, frames)

	// Вытесненные на клиенте кадры отчётов не дают; остальные доходят, кроме последних в пути.
	if got := s.Pacer.FeedbackApplied + s.Client.Superseded; got < frames-10 {
		t.Errorf("применено %d + вытеснено %d из %d", s.Pacer.FeedbackApplied, s.Client.Superseded, frames)
	}
	if s.Pacer.FeedbackDropped != 0 || s.DecodeErrors != 0 || s.Client.Lost != 0 {
		t.Errorf("без потерь ничего не должно отбрасываться: %s", s)
	}

	// Смещение сервер−клиент держится у минус смещения часов клиента с точностью до пары периодов.
	if !s.OffsetValid {
		t.Fatal("смещение часов должно быть вычислено")
	}
	clockOffset := config.ParseDuration(cfg.Simulation.ClockOffset, 0).Nanoseconds()
	if d := s.OffsetNs + clockOffset; d < -2*pacer.DisplayPeriodNs || d > 2*pacer.DisplayPeriodNs {
		t.Errorf("смещение клиент→сервер %v ушло от %v", time.Duration(s.OffsetNs), -time.Duration(clockOffset))
	}
}

func TestRunSimulation_LossyFeedback(t *testing.T) {
	const frames = 600
	for _, seed := range []int64{1, 2, 3} {
		cfg := simConfig(frames, 0.1)
		cfg.Simulation.Seed = seed
		s, err := RunSimulation(context.Background(), cfg, monoclock.NewManual(t0))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if s.Client.Lost == 0 {
			t.Errorf("seed %d: при loss=0.1 должны быть потери", seed)
		}
		checkPacing(t, s, frames)
	}
}

func TestRunSimulation_AllFeedbackLost(t *testing.T) {
	const frames = 100
	s, err := RunSimulation(context.Background(), simConfig(frames, 1), monoclock.NewManual(t0))
	if err != nil {
		t.Fatal(err)
	}
	if s.Pacer.FeedbackApplied != 0 || s.OffsetValid {
		t.Errorf("без отчётов: применено=%d offsetValid=%v", s.Pacer.FeedbackApplied, s.OffsetValid)
	}
	if s.Pacer.MissedFrames != 0 {
		t.Errorf("рендер короче периода, пропусков быть не должно: %d", s.Pacer.MissedFrames)
	}
	if s.Client.Lost != frames {
		t.Errorf("потеряно %d, ожидали %d", s.Client.Lost, frames)
	}
}

func TestRunSimulation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := RunSimulation(ctx, simConfig(0, 0), monoclock.NewManual(t0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}
	if s.Frames != 0 {
		t.Errorf("Frames = %d", s.Frames)
	}
}
