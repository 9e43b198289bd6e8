package store

import (
	"fmt"
	"sync"
	"time"
)

// idGenerator allocates time-derived conversation ids of the form
// chat_<epoch-millis>. Ids handed out within the same process are strictly
// increasing even when the clock does not advance between calls.
type idGenerator struct {
	mu         sync.Mutex
	lastMillis int64
	now        func() time.Time
}

func newIDGenerator() *idGenerator {
	return &idGenerator{now: time.Now}
}

func (g *idGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	if millis <= g.lastMillis {
		millis = g.lastMillis + 1
	}
	g.lastMillis = millis

	return fmt.Sprintf("chat_%d", millis)
}
