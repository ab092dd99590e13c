//go:build !linux

package monoclock

import "time"

var start = time.Now()

// nowNs на не-Linux: монотонное время от старта процесса (time.Since использует монотонные показания).
func nowNs() uint64 {
	return uint64(time.Since(start))
}

// GranularityNs — на не-Linux измерение не выполняется.
func GranularityNs() int64 {
	return 0
}
