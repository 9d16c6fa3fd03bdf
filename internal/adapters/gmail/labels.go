package gmail

import (
	"context"
	"fmt"
	"sync"

	gmailapi "google.golang.org/api/gmail/v1"
)

// LabelCache maps Gmail label ids to names and back. It is owned by one
// Connector and refreshed from the API when a lookup misses.
type LabelCache struct {
	mu     sync.RWMutex
	byID   map[string]string
	byName map[string]string
	loaded bool
}

// NewLabelCache creates an empty cache
func NewLabelCache() *LabelCache {
	return &LabelCache{
		byID:   make(map[string]string),
		byName: make(map[string]string),
	}
}

// Loaded reports whether the cache was filled from the API at least once
func (c *LabelCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Replace swaps the cache contents for a fresh label listing
func (c *LabelCache) Replace(labels []*gmailapi.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID = make(map[string]string, len(labels))
	c.byName = make(map[string]string, len(labels))
	for _, l := range labels {
		c.byID[l.Id] = l.Name
		c.byName[l.Name] = l.Id
	}
	c.loaded = true
}

// Put records one label
func (c *LabelCache) Put(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = name
	c.byName[name] = id
}

// ID returns the id for a label name
func (c *LabelCache) ID(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	return id, ok
}

// Names maps label ids to names. Unknown ids are returned as is and reported
// through the second result.
func (c *LabelCache) Names(ids []string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(ids))
	complete := true
	for _, id := range ids {
		name, ok := c.byID[id]
		if !ok {
			name = id
			complete = false
		}
		names = append(names, name)
	}
	return names, complete
}

func (c *Connector) refreshLabels(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := c.svc.Users.Labels.List(c.user).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}
	c.labels.Replace(resp.Labels)
	return nil
}
