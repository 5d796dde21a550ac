package storage

import (
	"sync"
	"time"
)

type waiter struct {
	ch       chan []string
	fallback []string
	expire   time.Time
}

// responseBuffer parks head-side requests until the tail's response arrives.
// Waiters nobody collects are dropped every tick.
type responseBuffer struct {
	sync.Mutex
	buffer map[int64]*waiter
	expire time.Duration
	tick   time.Duration
	done   chan struct{}
	once   sync.Once
}

func newResponseBuffer(expire, tick time.Duration) *responseBuffer {
	buf := &responseBuffer{
		buffer: make(map[int64]*waiter),
		expire: expire,
		tick:   tick,
		done:   make(chan struct{}),
	}

	// cleanup
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-buf.done:
				return
			case <-ticker.C:
				now := time.Now()
				buf.Lock()
				for seq, w := range buf.buffer {
					if w.expire.Before(now) {
						delete(buf.buffer, seq)
					}
				}
				buf.Unlock()
			}
		}
	}()

	return buf
}

// register returns the channel the response for seq is sent on. fallback is
// delivered instead when the response comes back empty.
func (buf *responseBuffer) register(seq int64, fallback []string) <-chan []string {
	buf.Lock()
	defer buf.Unlock()
	w := &waiter{
		ch:       make(chan []string, 1),
		fallback: fallback,
		expire:   time.Now().Add(buf.expire),
	}
	buf.buffer[seq] = w
	return w.ch
}

func (buf *responseBuffer) deliver(seq int64, results []string) bool {
	buf.Lock()
	w, ok := buf.buffer[seq]
	delete(buf.buffer, seq)
	buf.Unlock()
	if !ok {
		return false
	}
	if results == nil {
		results = w.fallback
	}
	w.ch <- results
	return true
}

func (buf *responseBuffer) cancel(seq int64) {
	buf.Lock()
	defer buf.Unlock()
	delete(buf.buffer, seq)
}

func (buf *responseBuffer) len() int {
	buf.Lock()
	defer buf.Unlock()
	return len(buf.buffer)
}

func (buf *responseBuffer) stop() {
	buf.once.Do(func() { close(buf.done) })
}
