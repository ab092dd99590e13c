// Package datachannel подключает приём отчётов клиента к WebRTC data channel.
// Сервер стриминга вызывает AttachOnDataChannel для PeerConnection каждого клиента, передавая
// feedback.Handler своего пейсера. Установка соединения и сигнализация делаются снаружи;
// ems-pacer без сети передаёт отчёты модели клиента в тот же Handler напрямую.
package datachannel

import (
	"github.com/pion/webrtc/v3"

	"github.com/plutovr/electric-maple/ems-pacer/internal/feedback"
	"github.com/plutovr/electric-maple/ems-pacer/internal/logger"
)

// Label — метка data channel, по которому клиент шлёт телеметрию.
const Label = "channel"

// Attach регистрирует обработчик сообщений dc. Колбэк pion вызывается из его сетевой горутины.
func Attach(dc *webrtc.DataChannel, h *feedback.Handler) {
	dc.OnOpen(func() {
		logger.Info("data channel %q открыт", dc.Label())
	})
	dc.OnClose(func() {
		logger.Info("data channel %q закрыт", dc.Label())
	})
	dc.OnMessage(onMessage(dc.Label(), h))
}

// AttachOnDataChannel ждёт data channel от клиента с меткой Label и подключает его.
func AttachOnDataChannel(pc *webrtc.PeerConnection, h *feedback.Handler) {
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != Label {
			logger.Debug("data channel %q пропущен", dc.Label())
			return
		}
		Attach(dc, h)
	})
}

func onMessage(label string, h *feedback.Handler) func(webrtc.DataChannelMessage) {
	return func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			logger.Debug("%s: текстовое сообщение (%d байт) пропущено", label, len(msg.Data))
			return
		}
		if err := h.HandleMessage(msg.Data); err != nil {
			logger.Error("%s: %v", label, err)
		}
	}
}
