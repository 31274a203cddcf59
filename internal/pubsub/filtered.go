package pubsub

// Filter decides whether a message is forwarded to a subscriber.
type Filter[T any] func(T) bool

// KeyFilter accepts messages whose key equals want, e.g. events for one job.
func KeyFilter[T any, K comparable](key func(T) K, want K) Filter[T] {
	return func(msg T) bool { return key(msg) == want }
}

// NewFilteredSender wraps s so that only messages accepted by f are forwarded. A nil filter forwards everything.
func NewFilteredSender[T any](s SenderCloser[T], f Filter[T]) SenderCloser[T] {
	return &filteredSender[T]{SenderCloser: s, filter: f}
}

// SubscribeFiltered subscribes to p, receiving only the messages accepted by f.
func SubscribeFiltered[T any](p Publisher[T], bufSize int, f Filter[T]) (ReceiverCloser[T], error) {
	ch := NewChannel[T](bufSize)
	if err := p.AddSubscriber(NewFilteredSender[T](ch, f)); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

type filteredSender[T any] struct {
	SenderCloser[T]
	filter Filter[T]
}

// Send reports false only once the underlying sender is closed; filtered-out messages count as delivered so that
// the publisher keeps the subscription.
func (s *filteredSender[T]) Send(msg T) bool {
	select {
	case <-s.Closed():
		return false
	default:
	}
	if s.filter != nil && !s.filter(msg) {
		return true
	}
	return s.SenderCloser.Send(msg)
}
