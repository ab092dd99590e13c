package config

import (
	"fmt"
	"os"
	"time"

	"github.com/plutovr/electric-maple/ems-pacer/internal/pacer"
	"github.com/plutovr/electric-maple/ems-pacer/internal/simclient"
	"gopkg.in/yaml.v3"
)

// Config — конфигурация ems-pacer: параметры пейсера, цикла кадров и модели клиента.
type Config struct {
	Pacer      PacerConfig      `yaml:"pacer"`
	Loop       LoopConfig       `yaml:"loop"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// PacerConfig — настройки пейсера в наносекундах; 0 = значение по умолчанию.
type PacerConfig struct {
	DisplayPeriodNs        int64   `yaml:"display_period_ns"`
	DecoderToBeginFrameNs  int64   `yaml:"decoder_to_begin_frame_ns"`
	FirstWakeupDelayNs     int64   `yaml:"first_wakeup_delay_ns"`
	FirstPredictionNs      int64   `yaml:"first_prediction_ns"`
	PresentSlopNs          int64   `yaml:"present_slop_ns"`
	FeedbackFactor         float64 `yaml:"feedback_factor"`
	FeedbackPenalty        float64 `yaml:"feedback_penalty"`
	EstimatedFramePeriodNs uint64  `yaml:"estimated_frame_period_ns"`
}

// LoopConfig — цикл кадров.
type LoopConfig struct {
	Frames     int    `yaml:"frames"`      // 0 = до отмены
	Realtime   bool   `yaml:"realtime"`    // системные часы вместо виртуальных
	StatsEvery int    `yaml:"stats_every"` // период вывода статистики в кадрах
	RenderTime string `yaml:"render_time"` // модельная длительность рендера, например "4ms"
}

// SimulationConfig — модель удалённого клиента. Длительности — строки time.ParseDuration.
type SimulationConfig struct {
	ClockOffset    string  `yaml:"clock_offset"`
	DisplayPeriod  string  `yaml:"display_period"` // пусто = период пейсера
	DisplayPhase   string  `yaml:"display_phase"`
	NetworkLatency string  `yaml:"network_latency"`
	Decode         string  `yaml:"decode"`
	BeginToDisplay string  `yaml:"begin_to_display"`
	ReturnLatency  string  `yaml:"return_latency"`
	FeedbackLoss   float64 `yaml:"feedback_loss"`
	Seed           int64   `yaml:"seed"`
	ExtensionID    uint8   `yaml:"extension_id"`
}

// Коэффициент усиления обратной связи для прогона с моделью клиента. Отчёт приходит
// на 2-3 кадра позже, а поправка копится в последующих пробуждениях: при pacer.FeedbackFactor
// цикл раскачивается.
const DefaultFeedbackFactor = 0.25

// Default возвращает конфиг по умолчанию
func Default() *Config {
	p := pacer.DefaultParams()
	return &Config{
		Pacer: PacerConfig{
			DisplayPeriodNs:        p.DisplayPeriodNs,
			DecoderToBeginFrameNs:  p.DecoderToBeginFrameDelayNs,
			FirstWakeupDelayNs:     p.FirstWakeupDelayNs,
			FirstPredictionNs:      p.FirstPredictionNs,
			PresentSlopNs:          p.PresentSlopNs,
			FeedbackFactor:         DefaultFeedbackFactor,
			FeedbackPenalty:        p.FeedbackPenalty,
			EstimatedFramePeriodNs: uint64(p.DisplayPeriodNs),
		},
		Loop: LoopConfig{
			Frames:     600,
			StatsEvery: 120,
			RenderTime: "4ms",
		},
		Simulation: SimulationConfig{
			ClockOffset:    "3s",
			NetworkLatency: "5ms",
			Decode:         "3ms",
			BeginToDisplay: "4ms",
			ReturnLatency:  "5ms",
			FeedbackLoss:   0.05,
			Seed:           1,
			ExtensionID:    5,
		},
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// Validate проверяет длительности и диапазоны.
func (c *Config) Validate() error {
	durations := map[string]string{
		"loop.render_time":            c.Loop.RenderTime,
		"simulation.clock_offset":     c.Simulation.ClockOffset,
		"simulation.display_period":   c.Simulation.DisplayPeriod,
		"simulation.display_phase":    c.Simulation.DisplayPhase,
		"simulation.network_latency":  c.Simulation.NetworkLatency,
		"simulation.decode":           c.Simulation.Decode,
		"simulation.begin_to_display": c.Simulation.BeginToDisplay,
		"simulation.return_latency":   c.Simulation.ReturnLatency,
	}
	for key, s := range durations {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Simulation.FeedbackLoss < 0 || c.Simulation.FeedbackLoss > 1 {
		return fmt.Errorf("simulation.feedback_loss вне [0,1]: %v", c.Simulation.FeedbackLoss)
	}
	if c.Simulation.ExtensionID == 0 || c.Simulation.ExtensionID > 14 {
		return fmt.Errorf("simulation.extension_id вне 1..14: %d", c.Simulation.ExtensionID)
	}
	if c.Pacer.DisplayPeriodNs <= 0 {
		return fmt.Errorf("pacer.display_period_ns должен быть > 0: %d", c.Pacer.DisplayPeriodNs)
	}
	if c.Pacer.FeedbackFactor <= 0 || c.Pacer.FeedbackPenalty <= 0 {
		return fmt.Errorf("pacer.feedback_factor/feedback_penalty должны быть > 0: %v/%v",
			c.Pacer.FeedbackFactor, c.Pacer.FeedbackPenalty)
	}
	delays := map[string]int64{
		"pacer.decoder_to_begin_frame_ns": c.Pacer.DecoderToBeginFrameNs,
		"pacer.first_wakeup_delay_ns":     c.Pacer.FirstWakeupDelayNs,
		"pacer.first_prediction_ns":       c.Pacer.FirstPredictionNs,
		"pacer.present_slop_ns":           c.Pacer.PresentSlopNs,
	}
	for key, v := range delays {
		if v < 0 {
			return fmt.Errorf("%s < 0: %d", key, v)
		}
	}
	return nil
}

// Params возвращает параметры пейсера.
func (p PacerConfig) Params() pacer.Params {
	return pacer.Params{
		DisplayPeriodNs:            p.DisplayPeriodNs,
		DecoderToBeginFrameDelayNs: p.DecoderToBeginFrameNs,
		FirstWakeupDelayNs:         p.FirstWakeupDelayNs,
		FirstPredictionNs:          p.FirstPredictionNs,
		PresentSlopNs:              p.PresentSlopNs,
		FeedbackFactor:             p.FeedbackFactor,
		FeedbackPenalty:            p.FeedbackPenalty,
	}
}

// RenderTimeNs — модельная длительность рендера кадра.
func (l LoopConfig) RenderTimeNs() int64 {
	return ParseDuration(l.RenderTime, 0).Nanoseconds()
}

// Params возвращает параметры модели клиента; period — период пейсера на случай пустого display_period.
func (s SimulationConfig) Params(periodNs int64) simclient.Params {
	return simclient.Params{
		ClockOffsetNs:    ParseDuration(s.ClockOffset, 0).Nanoseconds(),
		DisplayPeriodNs:  ParseDuration(s.DisplayPeriod, time.Duration(periodNs)).Nanoseconds(),
		DisplayPhaseNs:   ParseDuration(s.DisplayPhase, 0).Nanoseconds(),
		NetworkLatencyNs: ParseDuration(s.NetworkLatency, 0).Nanoseconds(),
		DecodeNs:         ParseDuration(s.Decode, 0).Nanoseconds(),
		BeginToDisplayNs: ParseDuration(s.BeginToDisplay, 0).Nanoseconds(),
		ReturnLatencyNs:  ParseDuration(s.ReturnLatency, 0).Nanoseconds(),
		FeedbackLoss:     s.FeedbackLoss,
		Seed:             s.Seed,
		ExtensionID:      s.ExtensionID,
	}
}

// ParseDuration парсит длительность из конфига ("4ms", "-2s"). Пустая строка или ошибка — def.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Pacer.DisplayPeriodNs == 0 {
		c.Pacer.DisplayPeriodNs = d.Pacer.DisplayPeriodNs
	}
	if c.Pacer.DecoderToBeginFrameNs == 0 {
		c.Pacer.DecoderToBeginFrameNs = d.Pacer.DecoderToBeginFrameNs
	}
	if c.Pacer.FirstWakeupDelayNs == 0 {
		c.Pacer.FirstWakeupDelayNs = d.Pacer.FirstWakeupDelayNs
	}
	if c.Pacer.FirstPredictionNs == 0 {
		c.Pacer.FirstPredictionNs = d.Pacer.FirstPredictionNs
	}
	if c.Pacer.PresentSlopNs == 0 {
		c.Pacer.PresentSlopNs = d.Pacer.PresentSlopNs
	}
	if c.Pacer.FeedbackFactor == 0 {
		c.Pacer.FeedbackFactor = d.Pacer.FeedbackFactor
	}
	if c.Pacer.FeedbackPenalty == 0 {
		c.Pacer.FeedbackPenalty = d.Pacer.FeedbackPenalty
	}
	if c.Pacer.EstimatedFramePeriodNs == 0 {
		c.Pacer.EstimatedFramePeriodNs = uint64(c.Pacer.DisplayPeriodNs)
	}
	if c.Loop.StatsEvery == 0 {
		c.Loop.StatsEvery = d.Loop.StatsEvery
	}
	if c.Loop.RenderTime == "" {
		c.Loop.RenderTime = d.Loop.RenderTime
	}
	if c.Simulation.ClockOffset == "" {
		c.Simulation.ClockOffset = d.Simulation.ClockOffset
	}
	if c.Simulation.NetworkLatency == "" {
		c.Simulation.NetworkLatency = d.Simulation.NetworkLatency
	}
	if c.Simulation.Decode == "" {
		c.Simulation.Decode = d.Simulation.Decode
	}
	if c.Simulation.BeginToDisplay == "" {
		c.Simulation.BeginToDisplay = d.Simulation.BeginToDisplay
	}
	if c.Simulation.ReturnLatency == "" {
		c.Simulation.ReturnLatency = d.Simulation.ReturnLatency
	}
	if c.Simulation.ExtensionID == 0 {
		c.Simulation.ExtensionID = d.Simulation.ExtensionID
	}
}
