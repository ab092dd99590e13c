package pacer

// Параметры пейсера по умолчанию (совпадают с остальным конвейером, но это настройки, а не формат протокола).
const (
	// RingSize — размер кольцевого буфера предсказанных кадров.
	RingSize = 32
	// DisplayPeriodNs — номинальный период дисплея клиента (~60 Гц).
	DisplayPeriodNs = 16_666_666
	// DecoderToBeginFrameDelayNs — модельная задержка от конца декодирования до begin_frame на клиенте.
	DecoderToBeginFrameDelayNs = 2_000_000
	// FirstWakeupDelayNs — оценка времени показа первого кадра относительно now.
	FirstWakeupDelayNs = 50_000_000
	// FirstPredictionNs — оценка первого клиентского времени показа после первого отчёта.
	FirstPredictionNs = 50_000_000
	// FeedbackFactor — коэффициент усиления ошибки.
	FeedbackFactor = 2.0
	// FeedbackPenalty — дополнительный множитель, когда ошибка положительная.
	FeedbackPenalty = 1.2
	// PresentSlopNs — допуск на present (0.5 мс).
	PresentSlopNs = 500_000

	// initialLastID — первый last_id; первый Predict вернёт 6.
	initialLastID = 5
)

// Params — настраиваемые параметры пейсера. Нулевые поля заменяются значениями по умолчанию (см. withDefaults).
type Params struct {
	DisplayPeriodNs            int64
	DecoderToBeginFrameDelayNs int64
	FirstWakeupDelayNs         int64
	FirstPredictionNs          int64
	PresentSlopNs              int64
	FeedbackFactor             float64
	FeedbackPenalty            float64
}

// DefaultParams возвращает параметры по умолчанию.
func DefaultParams() Params {
	return Params{
		DisplayPeriodNs:            DisplayPeriodNs,
		DecoderToBeginFrameDelayNs: DecoderToBeginFrameDelayNs,
		FirstWakeupDelayNs:         FirstWakeupDelayNs,
		FirstPredictionNs:          FirstPredictionNs,
		PresentSlopNs:              PresentSlopNs,
		FeedbackFactor:             FeedbackFactor,
		FeedbackPenalty:            FeedbackPenalty,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.DisplayPeriodNs <= 0 {
		p.DisplayPeriodNs = d.DisplayPeriodNs
	}
	if p.DecoderToBeginFrameDelayNs == 0 {
		p.DecoderToBeginFrameDelayNs = d.DecoderToBeginFrameDelayNs
	}
	if p.FirstWakeupDelayNs == 0 {
		p.FirstWakeupDelayNs = d.FirstWakeupDelayNs
	}
	if p.FirstPredictionNs == 0 {
		p.FirstPredictionNs = d.FirstPredictionNs
	}
	if p.PresentSlopNs == 0 {
		p.PresentSlopNs = d.PresentSlopNs
	}
	if p.FeedbackFactor == 0 {
		p.FeedbackFactor = d.FeedbackFactor
	}
	if p.FeedbackPenalty == 0 {
		p.FeedbackPenalty = d.FeedbackPenalty
	}
	return p
}
