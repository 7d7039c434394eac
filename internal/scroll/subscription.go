package scroll

import "sync"

// Subscription is a registered observer. Dispose removes it; calling
// Dispose more than once is harmless.
type Subscription struct {
	once    sync.Once
	dispose func()
}

// NewSubscription wraps a teardown function.
func NewSubscription(dispose func()) *Subscription {
	return &Subscription{dispose: dispose}
}

// Dispose runs the teardown once.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.dispose != nil {
			s.dispose()
		}
	})
}
