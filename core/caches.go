package core

import (
	"encoding/json"
	"sync"

	"pkt.systems/nbmux/schema"
)

// Caches holds the process-wide state shared by every conversation: the
// effective CLI defaults and the latest rate-limit snapshot.
type Caches struct {
	mu         sync.Mutex
	defaults   schema.CLIDefaultsSnapshot
	rateLimits schema.RateLimitsSnapshot
}

// NewCaches constructs an empty cache set.
func NewCaches() *Caches {
	return &Caches{}
}

// MergeDefaults folds a cli_defaults frame into the cache. Absent fields
// keep their previously known values; only fields the frame actually
// carried overwrite.
func (c *Caches) MergeDefaults(msg *schema.Inbound) schema.CLIDefaultsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Model != nil {
		c.defaults.Model = schema.CoerceString(*msg.Model)
	}
	if msg.ReasoningEffort != nil {
		c.defaults.ReasoningEffort = schema.CoerceString(*msg.ReasoningEffort)
	}
	if msg.AvailableModels != nil {
		c.defaults.AvailableModels = append([]schema.ModelOption(nil), msg.AvailableModels...)
	}
	return c.defaults
}

// Defaults returns the cached CLI defaults.
func (c *Caches) Defaults() schema.CLIDefaultsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults
}

// SetRateLimits replaces the rate-limit snapshot and stamps its fetch
// time.
func (c *Caches) SetRateLimits(snapshot json.RawMessage) schema.RateLimitsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimits = schema.RateLimitsSnapshot{
		Snapshot:  append(json.RawMessage(nil), snapshot...),
		FetchedAt: now(),
	}
	return c.rateLimits
}

// RateLimits returns the cached rate-limit snapshot.
func (c *Caches) RateLimits() schema.RateLimitsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimits
}
