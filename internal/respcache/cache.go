// Package respcache is a session-scoped cache of tool response
// payloads, keyed by the invocation's cache key, so that two identical
// tool invocations within a session produce exactly one tool call.
package respcache

import (
	"sync"
	"time"
)

// entry is one cached response with its insertion timestamp, used for
// TTL expiry, and its last-use time (insertion or latest hit), used for
// least-recently-used eviction when a session's cache exceeds MaxEntries.
type entry struct {
	payload   []byte
	timestamp int64
	lastUsed  int64
}

// SessionCache holds cached tool responses for one session.
type SessionCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
}

func newSessionCache(ttl time.Duration, maxEntries int) *SessionCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &SessionCache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get returns the cached payload for key if present and not expired.
func (c *SessionCache) Get(key string) ([]byte, bool) {
	return c.getAt(key, time.Now())
}

func (c *SessionCache) getAt(key string, now time.Time) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && now.UnixMilli()-e.timestamp >= c.ttl.Milliseconds() {
		delete(c.entries, key)
		return nil, false
	}
	e.lastUsed = now.UnixMilli()
	c.entries[key] = e
	return e.payload, true
}

// Put stores payload under key, evicting expired and least recently used
// entries as needed to respect maxEntries.
func (c *SessionCache) Put(key string, payload []byte) {
	c.putAt(key, payload, time.Now())
}

func (c *SessionCache) putAt(key string, payload []byte, now time.Time) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nowUnix := now.UnixMilli()
	c.entries[key] = entry{payload: payload, timestamp: nowUnix, lastUsed: nowUnix}
	c.prune(nowUnix)
}

func (c *SessionCache) prune(nowUnix int64) {
	if c.ttl > 0 {
		cutoff := nowUnix - c.ttl.Milliseconds()
		for k, e := range c.entries {
			if e.timestamp < cutoff {
				delete(c.entries, k)
			}
		}
	}

	if c.maxEntries <= 0 {
		return
	}

	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldestTs int64 = int64(^uint64(0) >> 1)
		for k, e := range c.entries {
			if e.lastUsed < oldestTs {
				oldestTs = e.lastUsed
				oldestKey = k
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
	}
}

// Size returns the current entry count.
func (c *SessionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cache holds one SessionCache per session, default 256 entries and no
// expiry (eviction is purely size-bounded unless TTL is configured).
type Cache struct {
	mu         sync.Mutex
	sessions   map[string]*SessionCache
	ttl        time.Duration
	maxEntries int
}

// Options configures a Cache.
type Options struct {
	TTL        time.Duration
	MaxEntries int
}

// New constructs a Cache. MaxEntries defaults to 256 per spec.md §6.
func New(opts Options) *Cache {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &Cache{
		sessions:   make(map[string]*SessionCache),
		ttl:        opts.TTL,
		maxEntries: maxEntries,
	}
}

// Get looks up a cached payload for (sessionID, key).
func (c *Cache) Get(sessionID, key string) ([]byte, bool) {
	sc := c.sessionFor(sessionID, false)
	if sc == nil {
		return nil, false
	}
	return sc.Get(key)
}

// Put stores a payload for (sessionID, key).
func (c *Cache) Put(sessionID, key string, payload []byte) {
	c.sessionFor(sessionID, true).Put(key, payload)
}

// EndSession drops all cached entries for a session.
func (c *Cache) EndSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

func (c *Cache) sessionFor(sessionID string, create bool) *SessionCache {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc, ok := c.sessions[sessionID]
	if !ok {
		if !create {
			return nil
		}
		sc = newSessionCache(c.ttl, c.maxEntries)
		c.sessions[sessionID] = sc
	}
	return sc
}

// SessionCount reports the number of sessions with live cache entries,
// for metrics/tests.
func (c *Cache) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
