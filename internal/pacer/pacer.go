// Package pacer — пейсер кадров серверного компоновщика при удалённом рендеринге.
//
// Пейсер предсказывает, когда серверу проснуться и когда кадр будет показан на дисплее
// удалённого клиента, и корректирует модель по асинхронной обратной связи с потерями
// (отчёты клиента о времени декодирования и показа кадра).
//
// Вызывающих двое: цикл кадров компоновщика (Predict, MarkPoint) и приёмник
// телеметрии клиента (GiveFeedback), обычно из разных горутин.
package pacer

import (
	"fmt"
	"sync"

	"github.com/plutovr/electric-maple/ems-pacer/internal/logger"
)

// Point — контрольная точка жизненного цикла кадра.
type Point int

const (
	PointWakeUp Point = iota
	PointBegin
	PointSubmit
)

func (p Point) String() string {
	switch p {
	case PointWakeUp:
		return "wake_up"
	case PointBegin:
		return "begin"
	case PointSubmit:
		return "submit"
	default:
		return fmt.Sprintf("point(%d)", int(p))
	}
}

// Prediction — результат Predict для одного кадра.
type Prediction struct {
	FrameID                  int64
	WakeUpTimeNs             uint64
	DesiredPresentTimeNs     uint64
	PresentSlopNs            uint64
	PredictedDisplayTimeNs   uint64
	PredictedDisplayPeriodNs uint64
	MinDisplayPeriodNs       uint64
	// MissedFrames — сколько периодов дисплея пришлось пропустить, чтобы пробуждение было в будущем.
	MissedFrames int64
}

// clientFeedback — последний отчёт клиента; потребляется и сбрасывается следующим Predict.
type clientFeedback struct {
	// wakeupOffset > 0 замедляет цикл кадров, < 0 ускоряет.
	wakeupOffset int64
	// clientDisplayTime — фактическое время показа из последнего отчёта (часы клиента).
	clientDisplayTime OptionalNs
}

// Pacer — пейсер кадров. Один мьютекс защищает кольцевой буфер и состояние обратной связи.
type Pacer struct {
	params                 Params
	estimatedFramePeriodNs uint64

	mu           sync.Mutex
	frames       ring
	lastID       int64
	feedback     clientFeedback
	missedFrames int64

	// Смещение часов клиент→сервер, пересчитывается в Predict.
	offsetNs    int64
	offsetAtNs  uint64
	offsetValid bool

	stats counters
}

// New создаёт пейсер. estimatedFramePeriodNs только записывается в лог: каденс задаёт
// params.DisplayPeriodNs (определения частоты обновления нет).
func New(params Params, estimatedFramePeriodNs, nowNs uint64) *Pacer {
	p := &Pacer{
		params:                 params.withDefaults(),
		estimatedFramePeriodNs: estimatedFramePeriodNs,
		frames:                 newRing(),
		lastID:                 initialLastID,
		feedback:               clientFeedback{},
	}
	logger.Info("пейсер создан: период дисплея %d нс (оценка кадра %d нс), now=%d",
		p.params.DisplayPeriodNs, estimatedFramePeriodNs, nowNs)
	return p
}

// Params возвращает действующие параметры (с подставленными значениями по умолчанию).
func (p *Pacer) Params() Params {
	return p.params
}

// Predict предсказывает следующий кадр: время пробуждения, время показа и новый id.
// Потребляет отложенную обратную связь: поправка применяется ровно к одному предсказанию.
func (p *Pacer) Predict(nowNs uint64) Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := &p.frames[slotIndex(p.lastID)]
	next := &p.frames[slotIndex(p.lastID+1)]

	if !last.Assigned() {
		// Первый кадр: предыдущего нет, берём now и оценку задержки первого показа.
		p.missedFrames = 0
		*next = PredictedFrame{
			ID:                  p.lastID + 1,
			WakeTimeNs:          nowNs,
			ServerDisplayTimeNs: nowNs + uint64(p.params.FirstWakeupDelayNs),
		}
	} else {
		wake := p.predictWakeUp(last, int64(nowNs))
		client := p.predictClientDisplay(last)
		server := p.predictServerDisplay(last, client, wake)
		*next = PredictedFrame{
			ID:                  last.ID + 1,
			WakeTimeNs:          uint64(wake),
			ServerDisplayTimeNs: uint64(server),
			ClientDisplayTime:   client,
		}
	}

	if next.ClientDisplayTime.Valid {
		p.offsetNs = int64(next.ServerDisplayTimeNs) - next.ClientDisplayTime.Ns
		p.offsetAtNs = nowNs
		p.offsetValid = true
	}

	p.lastID++
	p.feedback = clientFeedback{}

	p.stats.predictions.Inc()
	p.stats.missedFrames.Add(uint64(p.missedFrames))

	period := uint64(p.params.DisplayPeriodNs)
	return Prediction{
		FrameID:                  p.lastID,
		WakeUpTimeNs:             next.WakeTimeNs,
		DesiredPresentTimeNs:     next.ServerDisplayTimeNs,
		PresentSlopNs:            uint64(p.params.PresentSlopNs),
		PredictedDisplayTimeNs:   next.ServerDisplayTimeNs,
		PredictedDisplayPeriodNs: period,
		MinDisplayPeriodNs:       period,
		MissedFrames:             p.missedFrames,
	}
}

// Пробуждение: предыдущее пробуждение + период + поправка из обратной связи,
// затем целое число периодов, пока не окажемся строго после now.
func (p *Pacer) predictWakeUp(last *PredictedFrame, now int64) int64 {
	period := p.params.DisplayPeriodNs
	wake := int64(last.WakeTimeNs) + period + p.feedback.wakeupOffset
	p.missedFrames = 0
	if wake <= now {
		p.missedFrames = (now-wake)/period + 1
		wake += p.missedFrames * period
	}
	return wake
}

// Время показа у клиента. Без отчёта — неизвестно. Без прошлого предсказания — отчёт + оценка.
// Иначе от фактического времени показа добавляем периоды, пока не догоним прошлое предсказание
// со сдвигом на пропущенные сервером периоды.
func (p *Pacer) predictClientDisplay(last *PredictedFrame) OptionalNs {
	fb := p.feedback.clientDisplayTime
	switch {
	case !fb.Valid:
		return OptionalNs{}
	case !last.ClientDisplayTime.Valid:
		return KnownNs(fb.Ns + p.params.FirstPredictionNs)
	}
	period := p.params.DisplayPeriodNs
	target := last.ClientDisplayTime.Ns + p.missedFrames*period
	client := fb.Ns + period
	if client < target {
		client += ceilDiv(target-client, period) * period
	}
	return KnownNs(client)
}

// Время показа на сервере идёт за интервалом клиента; при пропусках докручиваем до пробуждения.
func (p *Pacer) predictServerDisplay(last *PredictedFrame, client OptionalNs, wake int64) int64 {
	period := p.params.DisplayPeriodNs
	delta := period
	if client.Valid && last.ClientDisplayTime.Valid {
		delta = client.Ns - last.ClientDisplayTime.Ns
	}
	server := int64(last.ServerDisplayTimeNs) + delta
	if server < wake {
		server += ceilDiv(wake-server, period) * period
	}
	return server
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// MarkPoint отмечает контрольную точку кадра. На предсказание не влияет; неизвестная точка —
// ошибка вызывающего кода (panic).
func (p *Pacer) MarkPoint(frameID int64, point Point, whenNs uint64) {
	switch point {
	case PointWakeUp, PointBegin, PointSubmit:
	default:
		panic(fmt.Sprintf("pacer: неизвестная точка %d для кадра %d", int(point), frameID))
	}
}

// GiveFeedback принимает отчёт клиента о кадре frameID (времена в часах клиента).
// Если кадра уже нет в кольцевом буфере (или не было), отчёт молча отбрасывается.
func (p *Pacer) GiveFeedback(frameID int64, decodeOutNs, beginFrameNs, displayNs uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.frames.lookup(frameID)
	if !ok {
		p.stats.feedbackDropped.Inc()
		logger.Debug("отчёт для кадра %d отброшен (нет в буфере)", frameID)
		return
	}

	var offset int64
	if frame.ClientDisplayTime.Valid {
		beginToDisplay := int64(displayNs) - int64(beginFrameNs)
		predictedBegin := frame.ClientDisplayTime.Ns - beginToDisplay
		errorNs := predictedBegin - p.params.DecoderToBeginFrameDelayNs - int64(decodeOutNs)
		offset = p.params.ComputeOffset(errorNs)
	}

	p.feedback = clientFeedback{
		wakeupOffset:      offset,
		clientDisplayTime: KnownNs(int64(displayNs)),
	}
	p.stats.feedbackApplied.Inc()
}

// ClientToServerTimeOffsetNs возвращает последнее вычисленное смещение часов клиент→сервер.
func (p *Pacer) ClientToServerTimeOffsetNs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offsetNs
}

// ClientToServerTimeOffset возвращает смещение вместе с now того Predict, который его вычислил.
// ok=false, пока смещение ни разу не вычислялось.
func (p *Pacer) ClientToServerTimeOffset() (offsetNs int64, computedAtNs uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offsetNs, p.offsetAtNs, p.offsetValid
}

// MissedFrames возвращает число пропущенных периодов в последнем Predict.
func (p *Pacer) MissedFrames() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.missedFrames
}

// Frame возвращает копию слота кадра id, если он ещё в кольцевом буфере.
func (p *Pacer) Frame(id int64) (PredictedFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames.lookup(id)
	if !ok {
		return PredictedFrame{}, false
	}
	return *f, true
}

// Stats возвращает снимок счётчиков без захвата мьютекса.
func (p *Pacer) Stats() Stats {
	return p.stats.snapshot()
}

// Info — отчёт компоновщика о фактическом present. Пейсер работает без тайминга дисплея, игнорирует.
func (p *Pacer) Info(frameID int64, desiredPresentTimeNs, actualPresentTimeNs, earliestPresentTimeNs, presentMarginNs, whenNs uint64) {
}

// InfoGPU — времена GPU кадра; не используются.
func (p *Pacer) InfoGPU(frameID int64, gpuStartNs, gpuEndNs, whenNs uint64) {
}

// UpdateVblankFromDisplayControl — vblank локального дисплея; при удалённом рендеринге не нужен.
func (p *Pacer) UpdateVblankFromDisplayControl(lastVblankNs uint64) {
}

// UpdatePresentOffset — не используется.
func (p *Pacer) UpdatePresentOffset(frameID int64, presentToDisplayOffsetNs uint64) {
}

// Close освобождает пейсер: кольцевой буфер и обратная связь сбрасываются.
func (p *Pacer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = newRing()
	p.feedback = clientFeedback{}
	logger.Info("пейсер остановлен после %d кадров", p.stats.predictions.Load())
}
