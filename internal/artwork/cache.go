package artwork

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/chorusfm/chorus/pkg/storage"
)

const (
	fetchTimeout   = 10 * time.Second
	maxArtworkSize = 5 << 20 // 5 MiB
)

// Cache mirrors track cover art into object storage so every sibling device
// renders artwork from one stable server-side URL instead of hammering the
// origin. Resolution is best-effort: until an image is cached, snapshots keep
// their original URL.
type Cache struct {
	storage storage.Storage
	client  *http.Client

	mu       sync.Mutex
	cached   map[string]string // origin URL -> object name
	inflight map[string]bool
}

func NewCache(store storage.Storage) *Cache {
	return &Cache{
		storage:  store,
		client:   &http.Client{Timeout: fetchTimeout},
		cached:   make(map[string]string),
		inflight: make(map[string]bool),
	}
}

// Resolve returns the cached artwork URL for the track's cover art, kicking
// off a background fetch the first time a URL is seen.
func (c *Cache) Resolve(track *model.Track) string {
	origin := track.CoverArt
	if origin == "" || c.storage == nil {
		return origin
	}
	// Already one of ours
	if strings.HasPrefix(origin, c.storage.PublicURL("")) {
		return origin
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if object, ok := c.cached[origin]; ok {
		return c.storage.PublicURL(object)
	}
	if !c.inflight[origin] {
		c.inflight[origin] = true
		go c.fetch(origin)
	}
	return origin
}

func (c *Cache) fetch(origin string) {
	object := objectName(origin)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, origin)
		c.mu.Unlock()
	}()

	// A previous process may already have cached it.
	if ok, err := c.storage.Exists(ctx, object); err == nil && ok {
		c.markCached(origin, object)
		return
	}

	resp, err := c.client.Get(origin)
	if err != nil {
		log.Printf("⚠️  Artwork fetch failed for %s: %v", origin, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️  Artwork fetch for %s returned %d", origin, resp.StatusCode)
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkSize))
	if err != nil {
		log.Printf("⚠️  Artwork read failed for %s: %v", origin, err)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return
	}

	if err := c.storage.Put(ctx, object, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.Printf("⚠️  Artwork store failed for %s: %v", origin, err)
		return
	}

	c.markCached(origin, object)
}

func (c *Cache) markCached(origin, object string) {
	c.mu.Lock()
	c.cached[origin] = object
	c.mu.Unlock()
}

func objectName(origin string) string {
	sum := sha256.Sum256([]byte(origin))
	return "artwork/" + hex.EncodeToString(sum[:])
}
