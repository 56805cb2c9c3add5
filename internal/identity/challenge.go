package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

type challengeEntry struct {
	value     string
	expiresAt time.Time
}

// ChallengeCache is a keyed one-shot store for verifier challenges with
// explicit TTL eviction: entries expire lazily on lookup and a periodic
// sweep clears abandoned ones.
type ChallengeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]challengeEntry
	now     func() time.Time
}

// NewChallengeCache creates a cache whose entries live for ttl.
func NewChallengeCache(ttl time.Duration) *ChallengeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChallengeCache{
		ttl:     ttl,
		entries: make(map[string]challengeEntry),
		now:     time.Now,
	}
}

// Issue stores and returns a fresh random challenge for the key,
// replacing any outstanding one.
func (c *ChallengeCache) Issue(key string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = challengeEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	return value, nil
}

// Consume validates and removes the challenge for the key. Expired or
// mismatched challenges fail; a challenge can be used once.
func (c *ChallengeCache) Consume(key, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	if c.now().After(e.expiresAt) {
		return false
	}
	return e.value == value
}

// Sweep removes expired entries and returns how many were dropped.
func (c *ChallengeCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dropped := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs Sweep on the interval until ctx is done.
func (c *ChallengeCache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
