package rtpext

import (
	"testing"

	"github.com/pion/rtp"
)

func newPacket() *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1234,
			Timestamp:      90000,
			SSRC:           0xdeadbeef,
			Marker:         true,
		},
		Payload: []byte{0x01, 0x02, 0x03},
	}
}

func TestFrameID_AfterMarshal(t *testing.T) {
	pkt := newPacket()
	if err := SetFrameID(pkt, DefaultExtensionID, 123456789); err != nil {
		t.Fatalf("SetFrameID: %v", err)
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got rtp.Packet
	if err := got.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	id, ok := FrameID(&got, DefaultExtensionID)
	if !ok || id != 123456789 {
		t.Errorf("FrameID = %d, %v; want 123456789, true", id, ok)
	}
	if string(got.Payload) != string(pkt.Payload) {
		t.Errorf("payload изменился: %v", got.Payload)
	}
}

func TestSetFrameID_Overwrite(t *testing.T) {
	pkt := newPacket()
	if err := SetFrameID(pkt, DefaultExtensionID, 1); err != nil {
		t.Fatal(err)
	}
	if err := SetFrameID(pkt, DefaultExtensionID, 2); err != nil {
		t.Fatal(err)
	}
	if id, ok := FrameID(pkt, DefaultExtensionID); !ok || id != 2 {
		t.Errorf("FrameID = %d, %v; want 2, true", id, ok)
	}
}

func TestFrameID_Missing(t *testing.T) {
	t.Run("no extension", func(t *testing.T) {
		if _, ok := FrameID(newPacket(), DefaultExtensionID); ok {
			t.Error("ожидали !ok без расширения")
		}
	})
	t.Run("other id", func(t *testing.T) {
		pkt := newPacket()
		if err := SetFrameID(pkt, 3, 7); err != nil {
			t.Fatal(err)
		}
		if _, ok := FrameID(pkt, DefaultExtensionID); ok {
			t.Error("ожидали !ok для другого id расширения")
		}
	})
	t.Run("wrong size", func(t *testing.T) {
		pkt := newPacket()
		if err := pkt.Header.SetExtension(DefaultExtensionID, []byte{1, 2, 3}); err != nil {
			t.Fatal(err)
		}
		if _, ok := FrameID(pkt, DefaultExtensionID); ok {
			t.Error("ожидали !ok для неверного размера")
		}
	})
}

func TestSetFrameID_Errors(t *testing.T) {
	if err := SetFrameID(newPacket(), DefaultExtensionID, -1); err == nil {
		t.Error("ожидали ошибку для отрицательного id")
	}
	// one-byte профиль допускает id 1..14
	pkt := newPacket()
	if err := SetFrameID(pkt, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := SetFrameID(pkt, 15, 1); err == nil {
		t.Error("ожидали ошибку для id 15 в one-byte профиле")
	}
}
