package feedback

import (
	"errors"
	"sync"
	"testing"
)

type call struct {
	id                        int64
	decodeOut, begin, display uint64
}

type recordingSink struct {
	mu    sync.Mutex
	calls []call
}

func (s *recordingSink) GiveFeedback(frameID int64, decodeOutNs, beginFrameNs, displayNs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{frameID, decodeOutNs, beginFrameNs, displayNs})
}

func TestHandler_HandleMessage(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink)

	msg, err := Encode(Report{
		FrameSequenceID:      42,
		DecodeCompleteTimeNs: 1_000,
		BeginFrameTimeNs:     3_000,
		DisplayTimeNs:        8_000,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := h.HandleMessage(msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	want := call{42, 1_000, 3_000, 8_000}
	if len(sink.calls) != 1 || sink.calls[0] != want {
		t.Errorf("sink получил %+v, ожидали %+v", sink.calls, want)
	}
	if h.Received() != 1 || h.DecodeErrors() != 0 {
		t.Errorf("счётчики: received=%d errors=%d", h.Received(), h.DecodeErrors())
	}
}

func TestHandler_RejectsBadMessages(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink)

	badTimes, err := Encode(Report{FrameSequenceID: 1, BeginFrameTimeNs: 10, DisplayTimeNs: 5})
	if err != nil {
		t.Fatal(err)
	}
	noDisplay, err := Encode(Report{FrameSequenceID: 1})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xc1, 0xff, 0x00}},
		{"display before begin", badTimes},
		{"no display time", noDisplay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.HandleMessage(tt.data); err == nil {
				t.Error("ожидали ошибку")
			}
		})
	}
	if len(sink.calls) != 0 {
		t.Errorf("битые сообщения дошли до sink: %+v", sink.calls)
	}
	if h.DecodeErrors() != uint64(len(tests)) {
		t.Errorf("DecodeErrors = %d, ожидали %d", h.DecodeErrors(), len(tests))
	}
	if err := h.HandleMessage(nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("пустое сообщение: %v, ожидали ErrEmptyMessage", err)
	}
}
