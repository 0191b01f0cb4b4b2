package imagecache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

// persistPrefix namespaces image entries in the storage layer.
const persistPrefix = "ygo-card-image-"

// persistedEntry is the persistent-tier form of a cached image.
type persistedEntry struct {
	DataURL   string `json:"dataUrl"`
	SourceURL string `json:"sourceUrl"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Config tunes the cache.
type Config struct {
	// MaxMemoryEntries caps the memory LRU tier.
	MaxMemoryEntries int
	// RestrictedHost names the image host that refuses direct fetches.
	RestrictedHost string
	// ProxyPrefix, when set, is prepended to restricted URLs on retry.
	ProxyPrefix string
	// FetchTimeout bounds a single download.
	FetchTimeout time.Duration
}

// Cache implements service.ImageCache over a memory LRU, the persistent
// storage tier, and HTTP fetch with proxy fallback. Failed URLs are
// remembered and never refetched until Clear or process restart.
type Cache struct {
	store    service.Storage
	view     service.ViewPort
	client   *http.Client
	memory   *imageLRU
	failed   map[string]bool
	inflight singleflight.Group
	cfg      Config
	stats    service.ImageCacheStats
	mu       sync.Mutex
}

// New creates an image cache over the given storage and view.
func New(store service.Storage, view service.ViewPort, cfg Config) *Cache {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Cache{
		store:  store,
		view:   view,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		memory: newImageLRU(cfg.MaxMemoryEntries),
		failed: make(map[string]bool),
		cfg:    cfg,
	}
}

// contentKey addresses an entry by card, source, and requested size.
func contentKey(cardID, srcURL string, size service.ImageSize) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%dx%d", cardID, srcURL, size.Width, size.Height)))
	return fmt.Sprintf("%x", sum[:8])
}

// Placeholder synchronously produces the constant fallback bitmap.
func (c *Cache) Placeholder(size service.ImageSize) image.Image {
	return newPlaceholder(size.Width, size.Height)
}

// LoadForDisplay resolves an image for a card and renders it into the
// slot: memory tier, then persistent tier, then network, with the
// loading state shown while a fetch is in flight. On final failure the
// URL joins the failed set and the placeholder is shown.
func (c *Cache) LoadForDisplay(ctx context.Context, cardID, srcURL string, size service.ImageSize, slot service.SlotID) error {
	key := contentKey(cardID, srcURL, size)

	c.mu.Lock()
	if img, ok := c.memory.get(key); ok {
		c.stats.Hits++
		c.mu.Unlock()
		c.view.ShowImage(slot, img)
		return nil
	}
	if c.failed[srcURL] {
		c.mu.Unlock()
		c.view.ShowPlaceholder(slot, "unavailable")
		return fmt.Errorf("image url previously failed: %s", srcURL)
	}
	c.stats.Misses++
	c.mu.Unlock()

	if img, ok := c.loadPersistent(ctx, key); ok {
		c.promote(key, img)
		c.view.ShowImage(slot, img)
		return nil
	}

	c.view.ShowLoading(slot)

	// Concurrent requests for the same content key share one fetch.
	v, err, _ := c.inflight.Do(key, func() (any, error) {
		return c.fetchAndStore(ctx, key, srcURL, size)
	})
	if err != nil {
		c.mu.Lock()
		c.failed[srcURL] = true
		c.mu.Unlock()
		common.LogWarn("image load failed", common.Fields{"url": srcURL, "error": err.Error()})
		c.view.ShowPlaceholder(slot, "unavailable")
		return err
	}

	img := v.(image.Image)
	c.promote(key, img)
	c.view.ShowImage(slot, img)
	return nil
}

// fetchAndStore downloads, downscales, and writes the persistent tier.
// Restricted-host failures are retried once through the proxy prefix.
func (c *Cache) fetchAndStore(ctx context.Context, key, srcURL string, size service.ImageSize) (image.Image, error) {
	img, err := c.fetchImage(ctx, srcURL)
	if err != nil && c.shouldProxy(srcURL) {
		proxied := c.cfg.ProxyPrefix + srcURL
		common.LogDebug("retrying image through proxy", common.Fields{"url": proxied})
		img, err = c.fetchImage(ctx, proxied)
	}
	if err != nil {
		return nil, err
	}

	scaled := downscale(img, size.Width, size.Height)

	dataURL, err := encodeDataURL(scaled)
	if err != nil {
		// The decoded bitmap is still usable for display.
		common.LogWarn("image persist encode failed", common.Fields{"url": srcURL, "error": err.Error()})
		return scaled, nil
	}
	entry := persistedEntry{
		DataURL:   dataURL,
		SourceURL: srcURL,
		Width:     scaled.Bounds().Dx(),
		Height:    scaled.Bounds().Dy(),
	}
	if err := c.store.Set(ctx, persistPrefix+key, entry); err != nil {
		common.LogWarn("image persist write failed", common.Fields{"url": srcURL, "error": err.Error()})
	}
	return scaled, nil
}

// loadPersistent re-decodes a persistent-tier entry.
func (c *Cache) loadPersistent(ctx context.Context, key string) (image.Image, bool) {
	var entry persistedEntry
	found, err := c.store.Get(ctx, persistPrefix+key, &entry)
	if err != nil || !found {
		return nil, false
	}
	img, err := decodeDataURL(entry.DataURL)
	if err != nil {
		common.LogWarn("discarding undecodable cached image", common.Fields{"key": key, "error": err.Error()})
		_ = c.store.Remove(ctx, persistPrefix+key)
		return nil, false
	}
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return img, true
}

// promote installs a bitmap in the memory tier, evicting on overflow.
func (c *Cache) promote(key string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, evicted := c.memory.put(key, img); evicted {
		c.stats.Evictions++
	}
}

func (c *Cache) shouldProxy(srcURL string) bool {
	if c.cfg.ProxyPrefix == "" || c.cfg.RestrictedHost == "" {
		return false
	}
	u, err := url.Parse(srcURL)
	if err != nil {
		return false
	}
	return u.Host == c.cfg.RestrictedHost
}

// Clear empties the memory tier, forgets failed URLs, and removes
// persistent entries.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.memory.clear()
	c.failed = make(map[string]bool)
	c.stats = service.ImageCacheStats{}
	c.mu.Unlock()

	keys, err := c.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if len(k) > len(persistPrefix) && k[:len(persistPrefix)] == persistPrefix {
			if err := c.store.Remove(ctx, k); err != nil {
				common.LogWarn("failed to remove cached image", common.Fields{"key": k, "error": err.Error()})
			}
		}
	}
	return nil
}

// Stats reports cache occupancy and effectiveness.
func (c *Cache) Stats() service.ImageCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.MemoryEntries = c.memory.len()
	stats.FailedURLs = len(c.failed)

	keys, err := c.store.Keys(context.Background())
	if err == nil {
		for _, k := range keys {
			if len(k) > len(persistPrefix) && k[:len(persistPrefix)] == persistPrefix {
				stats.PersistentEntries++
			}
		}
	}
	return stats
}
