// Package framepacing — цикл кадров компоновщика поверх пейсера и прогон замкнутого контура
// с моделью удалённого клиента.
package framepacing

import (
	"context"
	"fmt"

	"github.com/pion/rtp"

	"github.com/plutovr/electric-maple/ems-pacer/internal/monoclock"
	"github.com/plutovr/electric-maple/ems-pacer/internal/pacer"
	"github.com/plutovr/electric-maple/ems-pacer/internal/rtpext"
)

// Renderer рендерит и отправляет один кадр.
type Renderer interface {
	RenderFrame(ctx context.Context, pred pacer.Prediction) error
}

// Loop — цикл кадров: один Predict на кадр, вызовы строго последовательные.
type Loop struct {
	pacer    *pacer.Pacer
	clock    monoclock.Clock
	renderer Renderer
}

// NewLoop создаёт цикл кадров.
func NewLoop(p *pacer.Pacer, clock monoclock.Clock, r Renderer) *Loop {
	return &Loop{pacer: p, clock: clock, renderer: r}
}

// Step выполняет один кадр: предсказание, сон до пробуждения, рендер, отметки точек.
func (l *Loop) Step(ctx context.Context) (pacer.Prediction, error) {
	pred := l.pacer.Predict(l.clock.NowNs())
	if err := l.clock.SleepUntil(ctx, pred.WakeUpTimeNs); err != nil {
		return pred, err
	}
	now := l.clock.NowNs()
	l.pacer.MarkPoint(pred.FrameID, pacer.PointWakeUp, now)
	l.pacer.MarkPoint(pred.FrameID, pacer.PointBegin, now)
	if err := l.renderer.RenderFrame(ctx, pred); err != nil {
		return pred, fmt.Errorf("render frame %d: %w", pred.FrameID, err)
	}
	l.pacer.MarkPoint(pred.FrameID, pacer.PointSubmit, l.clock.NowNs())
	return pred, nil
}

// PacketSink принимает RTP пакет кадра в момент nowNs.
type PacketSink interface {
	SendPacket(nowNs uint64, packet []byte) error
}

// PacketSinkFunc — функция как PacketSink.
type PacketSinkFunc func(nowNs uint64, packet []byte) error

func (f PacketSinkFunc) SendPacket(nowNs uint64, packet []byte) error {
	return f(nowNs, packet)
}

// Encoder — Renderer, который упаковывает кадр в RTP пакет с id кадра в расширении заголовка.
// Рендер моделируется сном на renderTimeNs.
type Encoder struct {
	clock        monoclock.Clock
	sink         PacketSink
	extID        uint8
	renderTimeNs int64

	ssrc uint32
	seq  uint16
}

// NewEncoder создаёт кодер.
func NewEncoder(clock monoclock.Clock, sink PacketSink, extID uint8, ssrc uint32, renderTimeNs int64) *Encoder {
	return &Encoder{clock: clock, sink: sink, extID: extID, ssrc: ssrc, renderTimeNs: renderTimeNs}
}

// RenderFrame рендерит кадр и отдаёт пакет в sink.
func (e *Encoder) RenderFrame(ctx context.Context, pred pacer.Prediction) error {
	if e.renderTimeNs > 0 {
		if err := e.clock.SleepUntil(ctx, e.clock.NowNs()+uint64(e.renderTimeNs)); err != nil {
			return err
		}
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: e.seq,
			Timestamp:      rtpTimestamp(pred.PredictedDisplayTimeNs),
			SSRC:           e.ssrc,
		},
		Payload: []byte{0},
	}
	if err := rtpext.SetFrameID(pkt, e.extID, pred.FrameID); err != nil {
		return err
	}
	raw, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("rtp marshal: %w", err)
	}
	e.seq++
	return e.sink.SendPacket(e.clock.NowNs(), raw)
}

// 90 кГц видео-часы от предсказанного времени показа.
func rtpTimestamp(ns uint64) uint32 {
	return uint32(ns / 100_000 * 9)
}
