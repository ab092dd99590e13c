//go:build linux

package monoclock

import (
	"time"

	"golang.org/x/sys/unix"
)

var fallbackStart = time.Now()

func nowNs() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Since(fallbackStart))
	}
	return uint64(ts.Nano())
}

// GranularityNs выполняет простое измерение гранулярности CLOCK_MONOTONIC.
// Делает несколько вызовов clock_gettime и возвращает минимальный ненулевой интервал в наносекундах.
func GranularityNs() int64 {
	const rounds = 20
	var minDt int64 = 1e9
	for i := 0; i < rounds; i++ {
		var t1, t2 unix.Timespec
		_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &t1)
		_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &t2)
		dt := t2.Nano() - t1.Nano()
		if dt > 0 && dt < minDt {
			minDt = dt
		}
	}
	if minDt == 1e9 {
		return 0
	}
	return minDt
}
