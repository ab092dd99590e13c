// Package feedback — отчёты клиента о кадрах (телеметрия по data channel) и их доставка в пейсер.
package feedback

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/atomic"
)

// Report — отчёт клиента об одном кадре. Все времена в часах клиента, наносекунды.
type Report struct {
	FrameSequenceID      int64  `msgpack:"frame_sequence_id"`
	DecodeCompleteTimeNs uint64 `msgpack:"decode_complete_time"`
	BeginFrameTimeNs     uint64 `msgpack:"begin_frame_time"`
	DisplayTimeNs        uint64 `msgpack:"display_time"`
}

// ErrEmptyMessage — пустое сообщение вместо отчёта.
var ErrEmptyMessage = errors.New("feedback: пустое сообщение")

// Encode сериализует отчёт (msgpack).
func Encode(r Report) ([]byte, error) {
	b, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("feedback: encode: %w", err)
	}
	return b, nil
}

// Decode разбирает отчёт. Отчёт без времени показа или с показом раньше begin_frame считается битым.
func Decode(data []byte) (Report, error) {
	if len(data) == 0 {
		return Report{}, ErrEmptyMessage
	}
	var r Report
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("feedback: decode: %w", err)
	}
	if r.DisplayTimeNs == 0 || r.DisplayTimeNs < r.BeginFrameTimeNs {
		return Report{}, fmt.Errorf("feedback: некорректные времена кадра %d: begin=%d display=%d",
			r.FrameSequenceID, r.BeginFrameTimeNs, r.DisplayTimeNs)
	}
	return r, nil
}

// Sink принимает отчёты (реализуется *pacer.Pacer).
type Sink interface {
	GiveFeedback(frameID int64, decodeOutNs, beginFrameNs, displayNs uint64)
}

// Handler декодирует сообщения приёмника и передаёт отчёты в Sink.
// Безопасен для вызова из горутины сетевого приёма.
type Handler struct {
	sink Sink

	received     atomic.Uint64
	decodeErrors atomic.Uint64
}

// NewHandler создаёт обработчик для sink.
func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

// HandleMessage декодирует одно сообщение; битое сообщение не доходит до Sink.
func (h *Handler) HandleMessage(data []byte) error {
	r, err := Decode(data)
	if err != nil {
		h.decodeErrors.Inc()
		return err
	}
	h.HandleReport(r)
	return nil
}

// HandleReport передаёт уже разобранный отчёт в Sink.
func (h *Handler) HandleReport(r Report) {
	h.received.Inc()
	h.sink.GiveFeedback(r.FrameSequenceID, r.DecodeCompleteTimeNs, r.BeginFrameTimeNs, r.DisplayTimeNs)
}

// Received — число отчётов, переданных в Sink.
func (h *Handler) Received() uint64 {
	return h.received.Load()
}

// DecodeErrors — число отброшенных битых сообщений.
func (h *Handler) DecodeErrors() uint64 {
	return h.decodeErrors.Load()
}
