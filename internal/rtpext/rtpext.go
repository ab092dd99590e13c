// Package rtpext — RTP header extension Electric Maple: id кадра сервера в каждом RTP пакете кадра.
// Клиент читает id из пакетов и присылает отчёт о кадре с тем же id.
package rtpext

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
)

// FrameIDExtensionURI — URI расширения для SDP extmap.
const FrameIDExtensionURI = "http://gitlab.collabora.com/rpavlik/electric-maple-rtc/branches/20231004"

// FrameIDSize — размер полезной нагрузки расширения: id кадра, 8 байт big-endian.
const FrameIDSize = 8

// DefaultExtensionID — id расширения по умолчанию (one-byte header, 1..14).
const DefaultExtensionID = 5

// SetFrameID записывает id кадра в расширение extID пакета.
func SetFrameID(pkt *rtp.Packet, extID uint8, frameID int64) error {
	if frameID < 0 {
		return fmt.Errorf("rtpext: отрицательный id кадра %d", frameID)
	}
	var payload [FrameIDSize]byte
	binary.BigEndian.PutUint64(payload[:], uint64(frameID))
	if err := pkt.Header.SetExtension(extID, payload[:]); err != nil {
		return fmt.Errorf("rtpext: set extension %d: %w", extID, err)
	}
	return nil
}

// FrameID читает id кадра из расширения extID. Нет расширения или неверный размер — (0, false).
func FrameID(pkt *rtp.Packet, extID uint8) (int64, bool) {
	payload := pkt.Header.GetExtension(extID)
	if len(payload) != FrameIDSize {
		return 0, false
	}
	id := binary.BigEndian.Uint64(payload)
	if id > 1<<63-1 {
		return 0, false
	}
	return int64(id), true
}
