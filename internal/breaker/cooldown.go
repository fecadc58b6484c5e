package breaker

import (
	"sync"
	"time"

	"github.com/routegate/gateway/pkg/models"
)

// DefaultCooldown and MaxCooldown bound the Anthropic rate-limit cooldown
// window (§4.G): default 3 minutes when retry-after is unparseable, capped
// at 5 minutes regardless of what upstream reports.
const (
	DefaultCooldown = 3 * time.Minute
	MaxCooldown     = 5 * time.Minute
)

// CooldownTable tracks, per user, the window during which requests are
// locally rejected after an upstream 429. Shared between the Anthropic auth
// adapter (which owns it) and the Provider Executor (§4.C, §4.G) — a single
// instance is constructed once and passed to both.
type CooldownTable struct {
	mu      sync.Mutex
	entries map[string]models.Cooldown
}

// NewCooldownTable creates an empty cooldown table.
func NewCooldownTable() *CooldownTable {
	return &CooldownTable{entries: make(map[string]models.Cooldown)}
}

// Apply records a cooldown for user u expiring at now + min(retryAfter,
// MaxCooldown), or now + DefaultCooldown if retryAfter is zero/negative
// (unparseable). Applying twice for the same user retains whichever
// expires later (§8 idempotence property).
func (c *CooldownTable) Apply(userID string, retryAfter time.Duration, reason string) models.Cooldown {
	if retryAfter <= 0 {
		retryAfter = DefaultCooldown
	}
	if retryAfter > MaxCooldown {
		retryAfter = MaxCooldown
	}
	newExpiry := time.Now().Add(retryAfter)

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[userID]
	if ok && existing.ExpiresAt.After(newExpiry) {
		return existing
	}

	cd := models.Cooldown{
		UserID:            userID,
		ExpiresAt:         newExpiry,
		RetryAfterSeconds: int(retryAfter.Seconds()),
		Reason:            reason,
	}
	c.entries[userID] = cd
	return cd
}

// Active returns the cooldown for u if one is in effect, lazily removing it
// if it has expired.
func (c *CooldownTable) Active(userID string) (models.Cooldown, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cd, ok := c.entries[userID]
	if !ok {
		return models.Cooldown{}, false
	}
	if time.Now().After(cd.ExpiresAt) {
		delete(c.entries, userID)
		return models.Cooldown{}, false
	}
	return cd, true
}

// ListActive returns all currently unexpired cooldowns, eagerly pruning
// expired entries (§4.G: "eagerly removed when listing active cooldowns").
func (c *CooldownTable) ListActive() []models.Cooldown {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	active := make([]models.Cooldown, 0, len(c.entries))
	for userID, cd := range c.entries {
		if now.After(cd.ExpiresAt) {
			delete(c.entries, userID)
			continue
		}
		active = append(active, cd)
	}
	return active
}

// Clear removes a user's cooldown unconditionally (admin clear).
func (c *CooldownTable) Clear(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
