package pubsub

// Filter decides whether a message should be delivered. A nil Filter accepts everything.
type Filter[T any] func(T) bool

// OfType accepts only messages whose dynamic type is U, e.g. one event type out of an event interface.
func OfType[T any, U any]() Filter[T] {
	return func(msg T) bool {
		_, ok := any(msg).(U)
		return ok
	}
}

// NewFilteredSender wraps s so that rejected messages are silently discarded. Closing either side closes both.
func NewFilteredSender[T any](s SenderCloser[T], f Filter[T]) SenderCloser[T] {
	if f == nil {
		return s
	}
	return &filteredSender[T]{SenderCloser: s, accept: f}
}

type filteredSender[T any] struct {
	SenderCloser[T]
	accept Filter[T]
}

// Send reports false only once the underlying sender is closed; a discarded message still counts as accepted.
func (s *filteredSender[T]) Send(msg T) bool {
	if !s.accept(msg) {
		select {
		case <-s.Closed():
			return false
		default:
			return true
		}
	}
	return s.SenderCloser.Send(msg)
}
