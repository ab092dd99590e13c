// ems-pacer — серверный пейсер кадров Electric Maple с моделью удалённого клиента.
//
// Гоняет замкнутый контур: цикл кадров компоновщика → RTP пакет с id кадра → клиент
// (декодирование, показ на vsync) → отчёт по data channel (msgpack) → коррекция пейсера.
//
// Использование:
//
//	ems-pacer                           — прогон на виртуальных часах с конфигом по умолчанию
//	ems-pacer -config ems-pacer.yml      — параметры пейсера и модели клиента из YAML
//	ems-pacer -realtime -frames 0        — системные часы, до Ctrl+C
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/plutovr/electric-maple/ems-pacer/internal/config"
	"github.com/plutovr/electric-maple/ems-pacer/internal/logger"
	"github.com/plutovr/electric-maple/ems-pacer/internal/monoclock"
	"github.com/plutovr/electric-maple/ems-pacer/pkg/framepacing"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию ems-pacer.yml, если есть)")
	frames := flag.Int("frames", -1, "число кадров (0 = до отмены; переопределяет config)")
	realtime := flag.Bool("realtime", false, "системные монотонные часы вместо виртуальных")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	verbose := flag.Bool("verbose", false, "отладочный вывод")
	flag.Parse()

	logger.Quiet = *quiet
	logger.Verbose = *verbose

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *frames >= 0 {
		cfg.Loop.Frames = *frames
	}
	if *realtime {
		cfg.Loop.Realtime = true
	}

	var clock monoclock.Clock
	if cfg.Loop.Realtime {
		clock = monoclock.System{}
		logger.Info("системные часы, гранулярность %d нс", monoclock.GranularityNs())
	} else {
		clock = monoclock.NewManual(monoclock.System{}.NowNs())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	summary, err := framepacing.RunSimulation(ctx, cfg, clock)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%v", err)
		fmt.Println(summary)
		os.Exit(1)
	}
	fmt.Println(summary)
}

func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = "ems-pacer.yml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}
