package usecase

import (
	"strings"
	"sync"
)

// staleModelMarkers are substrings of provider errors that mean the cached
// model should no longer be preferred: rate limiting, exhausted quota, or a
// model that has been removed.
var staleModelMarkers = []string{
	"429",
	"rate limit",
	"ratelimit",
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"404",
	"not found",
	"not_found",
}

// WorkingModelCache remembers the last candidate model that produced a reply
// so later requests can skip models known to fail. It holds a single slot
// with no expiry and is safe for concurrent use.
type WorkingModelCache struct {
	mu    sync.RWMutex
	model string
}

func NewWorkingModelCache() *WorkingModelCache {
	return &WorkingModelCache{}
}

// Get returns the cached model, if any.
func (c *WorkingModelCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model, c.model != ""
}

// Set records model as the current working choice.
func (c *WorkingModelCache) Set(model string) {
	c.mu.Lock()
	c.model = strings.TrimSpace(model)
	c.mu.Unlock()
}

// Invalidate clears the slot when err marks the model as stale and the slot
// still holds model. A request that observed an older choice cannot clear a
// newer one stored by another request.
func (c *WorkingModelCache) Invalidate(model string, err error) bool {
	if !IsStaleModelError(err) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == "" || c.model != model {
		return false
	}
	c.model = ""
	return true
}

// IsStaleModelError reports whether err indicates rate limiting or a missing model.
func IsStaleModelError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range staleModelMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
