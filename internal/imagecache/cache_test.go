package imagecache

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygopack/packtrack/internal/service"
	"github.com/ygopack/packtrack/internal/storage"
)

// recordingView captures slot render calls for assertions.
type recordingView struct {
	service.ViewPort
	mu     sync.Mutex
	events []string
}

func (v *recordingView) ShowLoading(slot service.SlotID) {
	v.record("loading:" + string(slot))
}

func (v *recordingView) ShowPlaceholder(slot service.SlotID, label string) {
	v.record("placeholder:" + string(slot) + ":" + label)
}

func (v *recordingView) ShowImage(slot service.SlotID, _ image.Image) {
	v.record("image:" + string(slot))
}

func (v *recordingView) record(e string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, e)
}

func (v *recordingView) recorded() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.events...)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestCache(t *testing.T, cfg Config) (*Cache, *recordingView, service.Storage) {
	t.Helper()
	store := storage.NewMemoryStore()
	view := &recordingView{}
	return New(store, view, cfg), view, store
}

func TestLRUStrictEviction(t *testing.T) {
	lru := newImageLRU(2)
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	lru.put("a", img)
	lru.put("b", img)

	// Access promotes "a" so "b" is the eviction victim.
	_, ok := lru.get("a")
	require.True(t, ok)

	evicted, didEvict := lru.put("c", img)
	require.True(t, didEvict)
	assert.Equal(t, "b", evicted)
	assert.Equal(t, 2, lru.len())

	_, ok = lru.get("a")
	assert.True(t, ok)
	_, ok = lru.get("b")
	assert.False(t, ok)
}

func TestLoadForDisplayFetchesThenHitsMemory(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		_, _ = w.Write(pngBytes(t, 400, 580))
	}))
	defer srv.Close()

	cache, view, _ := newTestCache(t, Config{MaxMemoryEntries: 10})
	ctx := context.Background()
	size := service.ImageSize{Width: 100, Height: 145}

	require.NoError(t, cache.LoadForDisplay(ctx, "card-1", srv.URL+"/img.png", size, "slot-1"))
	assert.Equal(t, []string{"loading:slot-1", "image:slot-1"}, view.recorded())
	assert.Equal(t, 1, requests)

	// Memory hit: no loading state, no network.
	require.NoError(t, cache.LoadForDisplay(ctx, "card-1", srv.URL+"/img.png", size, "slot-2"))
	assert.Equal(t, 1, requests)
	events := view.recorded()
	assert.Equal(t, "image:slot-2", events[len(events)-1])

	stats := cache.Stats()
	assert.Equal(t, 1, stats.MemoryEntries)
	assert.Equal(t, uint64(1), stats.Hits)
}

func TestLoadForDisplayPersistentTierSurvivesRestart(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		_, _ = w.Write(pngBytes(t, 200, 290))
	}))
	defer srv.Close()

	store := storage.NewMemoryStore()
	size := service.ImageSize{Width: 100, Height: 145}
	ctx := context.Background()

	first := New(store, &recordingView{}, Config{MaxMemoryEntries: 10})
	require.NoError(t, first.LoadForDisplay(ctx, "card-1", srv.URL, size, "s"))
	require.Equal(t, 1, requests)

	// A fresh cache over the same store re-decodes from the persistent
	// tier instead of refetching.
	view := &recordingView{}
	second := New(store, view, Config{MaxMemoryEntries: 10})
	require.NoError(t, second.LoadForDisplay(ctx, "card-1", srv.URL, size, "s"))
	assert.Equal(t, 1, requests)
	assert.Equal(t, []string{"image:s"}, view.recorded())
}

func TestLoadForDisplayFailureJoinsFailedSet(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cache, view, _ := newTestCache(t, Config{MaxMemoryEntries: 10})
	ctx := context.Background()
	size := service.ImageSize{Width: 50, Height: 72}

	err := cache.LoadForDisplay(ctx, "card-1", srv.URL, size, "s")
	require.Error(t, err)
	assert.Equal(t, 1, requests)
	events := view.recorded()
	assert.Equal(t, "placeholder:s:unavailable", events[len(events)-1])

	// The failed URL is never refetched within the session.
	err = cache.LoadForDisplay(ctx, "card-1", srv.URL, size, "s")
	require.Error(t, err)
	assert.Equal(t, 1, requests)

	require.NoError(t, cache.Clear(ctx))
	assert.Zero(t, cache.Stats().FailedURLs)
}

func TestLoadForDisplayProxyFallback(t *testing.T) {
	proxied := 0
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		proxied++
		_, _ = w.Write(pngBytes(t, 100, 100))
	}))
	defer proxy.Close()

	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer direct.Close()

	directHost := direct.Listener.Addr().String()
	cache, view, _ := newTestCache(t, Config{
		MaxMemoryEntries: 10,
		RestrictedHost:   directHost,
		ProxyPrefix:      proxy.URL + "/?u=",
	})

	err := cache.LoadForDisplay(context.Background(), "card-1", direct.URL+"/img.png",
		service.ImageSize{Width: 50, Height: 50}, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, proxied)
	events := view.recorded()
	assert.Equal(t, "image:s", events[len(events)-1])
}

func TestMemoryTierNeverExceedsCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pngBytes(t, 60, 60))
	}))
	defer srv.Close()

	cache, _, _ := newTestCache(t, Config{MaxMemoryEntries: 3})
	ctx := context.Background()
	size := service.ImageSize{Width: 30, Height: 30}

	for i := 0; i < 10; i++ {
		url := srv.URL + "/" + string(rune('a'+i)) + ".png"
		require.NoError(t, cache.LoadForDisplay(ctx, "card", url, size, "s"))
	}

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.MemoryEntries, 3)
	assert.Equal(t, uint64(7), stats.Evictions)
}

func TestDownscaleContainAspect(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 400))

	got := downscale(src, 100, 145)
	assert.Equal(t, 100, got.Bounds().Dx())
	assert.Equal(t, 100, got.Bounds().Dy())

	// Never upscales.
	small := image.NewRGBA(image.Rect(0, 0, 20, 30))
	got = downscale(small, 100, 145)
	assert.Equal(t, 20, got.Bounds().Dx())
	assert.Equal(t, 30, got.Bounds().Dy())
}

func TestPlaceholderDimensions(t *testing.T) {
	cache, _, _ := newTestCache(t, Config{})
	img := cache.Placeholder(service.ImageSize{Width: 64, Height: 96})
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 96, img.Bounds().Dy())

	// Zero size falls back to the default card thumbnail dimensions.
	img = cache.Placeholder(service.ImageSize{})
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 145, img.Bounds().Dy())
}

func TestDataURLRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 15))
	dataURL, err := encodeDataURL(src)
	require.NoError(t, err)
	assert.Contains(t, dataURL, "data:image/jpeg;base64,")

	img, err := decodeDataURL(dataURL)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 15, img.Bounds().Dy())

	_, err = decodeDataURL("not a data url")
	assert.Error(t, err)
}
