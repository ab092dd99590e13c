package pacer

import "math"

// ComputeOffset переводит ошибку клиента (нс) в поправку к следующему времени пробуждения
// с коэффициентами по умолчанию: error*2.0, при error > 0 дополнительно *1.2.
func ComputeOffset(errorNs int64) int64 {
	return computeOffset(errorNs, FeedbackFactor, FeedbackPenalty)
}

// ComputeOffset — то же, что пакетная ComputeOffset, но с коэффициентами из p.
func (p Params) ComputeOffset(errorNs int64) int64 {
	p = p.withDefaults()
	return computeOffset(errorNs, p.FeedbackFactor, p.FeedbackPenalty)
}

// Асимметричный П-регулятор: опоздание клиента наказывается сильнее, чем опережение.
func computeOffset(errorNs int64, factor, penalty float64) int64 {
	out := float64(errorNs) * factor
	if errorNs > 0 {
		out *= penalty
	}
	return int64(math.Round(out))
}
