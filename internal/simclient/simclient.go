// Package simclient — модель удалённого клиента (шлема) для прогона замкнутого контура без железа.
//
// Клиент принимает RTP пакет кадра, читает id кадра из расширения, декодирует кадр, показывает
// его на ближайшем vsync своего дисплея и отправляет отчёт обратно с задержкой; часть отчётов теряется.
// Как и цикл кадров шлема, на каждом vsync показывается последний декодированный кадр: если к тому же
// vsync успел следующий кадр, предыдущий не показывается и отчёта о нём нет.
package simclient

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/pion/rtp"

	"github.com/plutovr/electric-maple/ems-pacer/internal/feedback"
	"github.com/plutovr/electric-maple/ems-pacer/internal/rtpext"
)

// Params — параметры модели. Времена в наносекундах.
type Params struct {
	ClockOffsetNs    int64   // часы клиента = часы сервера + смещение
	DisplayPeriodNs  int64   // период vsync клиента
	DisplayPhaseNs   int64   // фаза vsync в часах клиента
	NetworkLatencyNs int64   // submit на сервере → пакет у клиента
	DecodeNs         int64   // длительность декодирования
	BeginToDisplayNs int64   // begin_frame → показ
	ReturnLatencyNs  int64   // показ → отчёт на сервере
	FeedbackLoss     float64 // вероятность потери отчёта, 0..1
	Seed             int64
	ExtensionID      uint8
}

// Stats — счётчики клиента.
type Stats struct {
	Received   uint64
	Displayed  uint64
	Lost       uint64 // отчёты, потерянные по дороге
	Superseded uint64 // кадры, вытесненные следующим кадром на том же vsync
}

type pending struct {
	deliverAt uint64
	displayNs int64
	msg       []byte
}

// Client — модель клиента. Receive и Deliver можно звать из разных горутин.
type Client struct {
	p Params

	mu          sync.Mutex
	rng         *rand.Rand
	queue       []pending
	lastDisplay int64
	stats       Stats
}

// ErrNoFrameID — в пакете нет расширения с id кадра.
var ErrNoFrameID = errors.New("simclient: в пакете нет id кадра")

// New создаёт клиента.
func New(p Params) (*Client, error) {
	if p.DisplayPeriodNs <= 0 {
		return nil, fmt.Errorf("simclient: период дисплея должен быть > 0, получили %d", p.DisplayPeriodNs)
	}
	if p.FeedbackLoss < 0 || p.FeedbackLoss > 1 {
		return nil, fmt.Errorf("simclient: feedback_loss вне [0,1]: %v", p.FeedbackLoss)
	}
	if p.ExtensionID == 0 {
		p.ExtensionID = rtpext.DefaultExtensionID
	}
	return &Client{
		p:   p,
		rng: rand.New(rand.NewSource(p.Seed)),
	}, nil
}

// Receive принимает RTP пакет кадра в момент serverNowNs (часы сервера) и ставит отчёт в очередь.
func (c *Client) Receive(serverNowNs uint64, packet []byte) error {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(packet); err != nil {
		return fmt.Errorf("simclient: rtp unmarshal: %w", err)
	}
	id, ok := rtpext.FrameID(&pkt, c.p.ExtensionID)
	if !ok {
		return ErrNoFrameID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Received++

	decodeOut := int64(serverNowNs) + c.p.ClockOffsetNs + c.p.NetworkLatencyNs + c.p.DecodeNs
	if decodeOut <= 0 {
		return fmt.Errorf("simclient: время клиента %d <= 0, проверьте clock_offset", decodeOut)
	}
	display := c.vsyncAtOrAfter(decodeOut + c.p.BeginToDisplayNs)
	if display < c.lastDisplay {
		display = c.lastDisplay
	}
	if display == c.lastDisplay {
		// предыдущий кадр так и не показан
		c.dropQueued(display)
		c.stats.Displayed--
		c.stats.Superseded++
	}
	c.lastDisplay = display
	c.stats.Displayed++

	if c.rng.Float64() < c.p.FeedbackLoss {
		c.stats.Lost++
		return nil
	}
	msg, err := feedback.Encode(feedback.Report{
		FrameSequenceID:      id,
		DecodeCompleteTimeNs: uint64(decodeOut),
		BeginFrameTimeNs:     uint64(display - c.p.BeginToDisplayNs),
		DisplayTimeNs:        uint64(display),
	})
	if err != nil {
		return err
	}
	deliverAt := display - c.p.ClockOffsetNs + c.p.ReturnLatencyNs
	if deliverAt < 0 {
		deliverAt = 0
	}
	c.enqueue(pending{deliverAt: uint64(deliverAt), displayNs: display, msg: msg})
	return nil
}

// ближайший vsync >= t в часах клиента
func (c *Client) vsyncAtOrAfter(t int64) int64 {
	period := c.p.DisplayPeriodNs
	rel := t - c.p.DisplayPhaseNs
	k := rel / period
	if rel%period != 0 && rel > 0 {
		k++
	}
	return c.p.DisplayPhaseNs + k*period
}

func (c *Client) enqueue(p pending) {
	i := sort.Search(len(c.queue), func(i int) bool { return c.queue[i].deliverAt > p.deliverAt })
	c.queue = append(c.queue, pending{})
	copy(c.queue[i+1:], c.queue[i:])
	c.queue[i] = p
}

func (c *Client) dropQueued(displayNs int64) {
	for i := len(c.queue) - 1; i >= 0; i-- {
		if c.queue[i].displayNs == displayNs {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

// Deliver возвращает отчёты, дошедшие до сервера к serverNowNs, в порядке доставки.
func (c *Client) Deliver(serverNowNs uint64) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := sort.Search(len(c.queue), func(i int) bool { return c.queue[i].deliverAt > serverNowNs })
	if n == 0 {
		return nil
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = c.queue[i].msg
	}
	c.queue = append(c.queue[:0], c.queue[n:]...)
	return out
}

// Pending — число отчётов в пути.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stats возвращает снимок счётчиков.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
