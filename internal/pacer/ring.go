package pacer

// unassignedID — id свободного слота кольцевого буфера.
const unassignedID = -1

// OptionalNs — отметка времени в нс, которая может быть ещё неизвестна.
type OptionalNs struct {
	Ns    int64
	Valid bool
}

// KnownNs возвращает известную отметку времени.
func KnownNs(ns int64) OptionalNs {
	return OptionalNs{Ns: ns, Valid: true}
}

// PredictedFrame — один слот кольцевого буфера.
type PredictedFrame struct {
	// ID — уникальный id кадра; -1 — слот не назначен.
	ID int64
	// WakeTimeNs — когда серверу проснуться для работы над кадром.
	WakeTimeNs uint64
	// ServerDisplayTimeNs — предсказанное время показа в домене часов сервера.
	ServerDisplayTimeNs uint64
	// ClientDisplayTime — предсказанное время показа в домене часов клиента; Valid=false, пока нет соответствия.
	ClientDisplayTime OptionalNs
}

// Assigned сообщает, занят ли слот кадром.
func (f PredictedFrame) Assigned() bool {
	return f.ID != unassignedID
}

// ring — кольцевой буфер фиксированного размера, слот i хранит кадр с id mod RingSize == i.
// Вытеснение происходит неявно: кадр id+RingSize перезаписывает слот кадра id.
type ring [RingSize]PredictedFrame

func newRing() ring {
	var r ring
	for i := range r {
		r[i] = PredictedFrame{ID: unassignedID}
	}
	return r
}

func slotIndex(id int64) int {
	return int(id % RingSize)
}

// lookup возвращает слот кадра id, только если он ещё не перезаписан.
func (r *ring) lookup(id int64) (*PredictedFrame, bool) {
	if id < 0 {
		return nil, false
	}
	f := &r[slotIndex(id)]
	if f.ID != id {
		return nil, false
	}
	return f, true
}
