package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/hammamikhairi/ottochat/internal/logger"
)

// CacheOption configures the AudioCache.
type CacheOption func(*AudioCache)

// WithDiskDir enables the on-disk layer rooted at dir. When write is false
// existing files are still read but nothing new is persisted.
func WithDiskDir(dir string, write bool) CacheOption {
	return func(c *AudioCache) {
		c.dir = dir
		c.diskWrite = write
	}
}

// WithMaxEntries bounds the in-memory layer. The oldest entry is evicted
// first. Zero means unbounded.
func WithMaxEntries(n int) CacheOption {
	return func(c *AudioCache) { c.maxEntries = n }
}

// AudioCache keeps synthesized audio keyed by sha256(namespace + text), in
// memory and optionally on disk. The namespace is the backend the audio came
// from, so pointing the client elsewhere starts from a cold cache.
type AudioCache struct {
	namespace  string
	dir        string
	diskWrite  bool
	maxEntries int
	log        *logger.Logger

	mu      sync.Mutex
	entries map[string][]byte
	order   []string
	hits    int64
	misses  int64
}

// NewAudioCache creates an audio cache.
func NewAudioCache(namespace string, log *logger.Logger, opts ...CacheOption) *AudioCache {
	c := &AudioCache{
		namespace:  namespace,
		maxEntries: defaultMaxCacheEntries,
		log:        log,
		entries:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dir != "" && c.diskWrite {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			log.Error("audio cache: creating %s: %v", c.dir, err)
			c.diskWrite = false
		}
	}
	return c
}

// Get returns cached audio for text. Disk hits are promoted to memory.
func (c *AudioCache) Get(text string) ([]byte, bool) {
	key := c.key(text)

	c.mu.Lock()
	if data, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return data, true
	}
	c.mu.Unlock()

	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil && len(data) > 0 {
			c.mu.Lock()
			c.storeLocked(key, data)
			c.hits++
			c.mu.Unlock()
			c.log.Debug("audio cache: disk hit %s (%d bytes)", key[:12], len(data))
			return data, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Put stores audio for text. Empty audio is never cached.
func (c *AudioCache) Put(text string, audio []byte) {
	if len(audio) == 0 {
		return
	}
	key := c.key(text)

	c.mu.Lock()
	c.storeLocked(key, audio)
	c.mu.Unlock()

	if c.dir != "" && c.diskWrite {
		if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
			c.log.Error("audio cache: disk write %s: %v", key[:12], err)
		}
	}
}

// Len returns the number of in-memory entries.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *AudioCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *AudioCache) storeLocked(key string, audio []byte) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = audio
	for c.maxEntries > 0 && len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *AudioCache) key(text string) string {
	h := sha256.Sum256([]byte(c.namespace + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *AudioCache) path(key string) string {
	return filepath.Join(c.dir, key+".wav")
}
