package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
)

type client struct {
	id string

	summaryInterval time.Duration
	counterMutex    sync.Mutex
	counter         map[string]int
	dropped         int
}

func newClient(id string, summaryInterval time.Duration) *client {
	return &client{
		id:              id,
		summaryInterval: summaryInterval,
		counter:         make(map[string]int),
	}
}

func (c *client) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(c.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			c.logSummary()
		}
	}
}

func (c *client) incCounter(msgType string) {
	c.counterMutex.Lock()
	defer c.counterMutex.Unlock()

	c.counter[msgType]++
}

func (c *client) drop() {
	instrumentDrop()

	c.counterMutex.Lock()
	defer c.counterMutex.Unlock()

	c.dropped++
	c.counter["dropped_changes"]++
}

// takeDropped returns the number of changes dropped since the last call.
func (c *client) takeDropped() int {
	c.counterMutex.Lock()
	defer c.counterMutex.Unlock()

	dropped := c.dropped
	c.dropped = 0
	return dropped
}

func (c *client) logSummary() {
	c.counterMutex.Lock()
	defer c.counterMutex.Unlock()

	if len(c.counter) == 0 {
		return
	}

	entry := logs.
		WithTag(logs.ClientIDTag, c.id).
		WithTag("time_interval", c.summaryInterval)

	for k, v := range c.counter {
		entry = entry.WithTag(k, v)
		delete(c.counter, k)
	}

	entry.Info("outbound message summary")
}
