package monitor

import "sync"

// listeners holds at most one handler per event kind. Registering again
// replaces the previous handler; registering nil removes it.
type listeners struct {
	mu           sync.RWMutex
	onConnect    func(name string)
	onDisconnect func()
	onHeartRate  func(bpm int)
	onError      func(message string)
}

// OnConnect registers the handler fired with the device name after a successful Connect
func (c *Controller) OnConnect(fn func(name string)) {
	c.events.mu.Lock()
	defer c.events.mu.Unlock()
	c.events.onConnect = fn
}

// OnDisconnect registers the handler fired when a Connected session ends,
// either by Disconnect or by the link dropping
func (c *Controller) OnDisconnect(fn func()) {
	c.events.mu.Lock()
	defer c.events.mu.Unlock()
	c.events.onDisconnect = fn
}

// OnHeartRateUpdate registers the handler fired for every accepted measurement
func (c *Controller) OnHeartRateUpdate(fn func(bpm int)) {
	c.events.mu.Lock()
	defer c.events.mu.Unlock()
	c.events.onHeartRate = fn
}

// OnError registers the handler fired for lifecycle failures, teardown
// warnings and malformed frames
func (c *Controller) OnError(fn func(message string)) {
	c.events.mu.Lock()
	defer c.events.mu.Unlock()
	c.events.onError = fn
}

func (l *listeners) fireConnect(name string) {
	l.mu.RLock()
	fn := l.onConnect
	l.mu.RUnlock()
	if fn != nil {
		fn(name)
	}
}

func (l *listeners) fireDisconnect() {
	l.mu.RLock()
	fn := l.onDisconnect
	l.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (l *listeners) fireHeartRate(bpm int) {
	l.mu.RLock()
	fn := l.onHeartRate
	l.mu.RUnlock()
	if fn != nil {
		fn(bpm)
	}
}

func (l *listeners) fireError(message string) {
	l.mu.RLock()
	fn := l.onError
	l.mu.RUnlock()
	if fn != nil {
		fn(message)
	}
}

func (l *listeners) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onConnect = nil
	l.onDisconnect = nil
	l.onHeartRate = nil
	l.onError = nil
}
