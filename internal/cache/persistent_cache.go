package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const indexFile = "cache_index.json"

// TileCache is a disk-backed ZXY tile cache with an LRU index and a TTL.
// Tiles are stored as {baseDir}/{provider}/{z}/{x}/{y}.tile and the index
// persists across runs in {baseDir}/cache_index.json.
type TileCache struct {
	baseDir string
	ttl     time.Duration
	mu      sync.Mutex
	index   *lru.Cache[string, *TileMetadata]
}

// TileMetadata stores information about a cached tile
type TileMetadata struct {
	Key        string    `json:"key"`
	Provider   string    `json:"provider"`
	Z          int       `json:"z"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Size       int64     `json:"size"`
	AccessTime time.Time `json:"accessTime"`
	CreateTime time.Time `json:"createTime"`
}

// New creates a tile cache holding at most maxEntries tiles.
// A ttl of zero disables expiry.
func New(baseDir string, maxEntries int, ttl time.Duration) (*TileCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", maxEntries)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &TileCache{
		baseDir: baseDir,
		ttl:     ttl,
	}

	index, err := lru.NewWithEvict[string, *TileMetadata](maxEntries, func(key string, meta *TileMetadata) {
		os.Remove(c.buildFilePath(meta))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache index: %w", err)
	}
	c.index = index

	// Load metadata index from disk, rebuilding it from the tree when missing
	if err := c.loadMetadata(); err != nil {
		if err := c.rebuildMetadata(); err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
	}

	return c, nil
}

// BuildKey creates a cache key from tile coordinates
func BuildKey(provider string, z, x, y int) string {
	return fmt.Sprintf("%s:%d:%d:%d", provider, z, x, y)
}

// Get retrieves a tile, refreshing its LRU position
func (c *TileCache) Get(provider string, z, x, y int) ([]byte, bool) {
	key := BuildKey(provider, z, x, y)

	c.mu.Lock()
	defer c.mu.Unlock()

	meta, ok := c.index.Get(key)
	if !ok {
		return nil, false
	}

	if c.ttl > 0 && time.Since(meta.CreateTime) > c.ttl {
		c.index.Remove(key)
		return nil, false
	}

	data, err := os.ReadFile(c.buildFilePath(meta))
	if err != nil {
		// File missing - remove from index
		c.index.Remove(key)
		return nil, false
	}

	meta.AccessTime = time.Now()
	return data, true
}

// Set stores a tile
func (c *TileCache) Set(provider string, z, x, y int, data []byte) error {
	now := time.Now()
	meta := &TileMetadata{
		Key:        BuildKey(provider, z, x, y),
		Provider:   provider,
		Z:          z,
		X:          x,
		Y:          y,
		Size:       int64(len(data)),
		AccessTime: now,
		CreateTime: now,
	}

	filePath := c.buildFilePath(meta)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	c.index.Add(meta.Key, meta)
	return nil
}

// buildFilePath creates the ZXY file path for a tile
func (c *TileCache) buildFilePath(meta *TileMetadata) string {
	return filepath.Join(c.baseDir, meta.Provider, strconv.Itoa(meta.Z),
		strconv.Itoa(meta.X), strconv.Itoa(meta.Y)+".tile")
}

// EvictExpired removes tiles older than the TTL and returns how many were dropped
func (c *TileCache) EvictExpired() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for _, key := range c.index.Keys() {
		meta, ok := c.index.Peek(key)
		if ok && time.Since(meta.CreateTime) > c.ttl {
			c.index.Remove(key)
			evicted++
		}
	}
	return evicted
}

// Flush writes the metadata index to disk
func (c *TileCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveMetadata()
}

// Close persists the index
func (c *TileCache) Close() error {
	return c.Flush()
}

// Stats returns cache statistics
func (c *TileCache) Stats() (entries int, sizeBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, meta := range c.index.Values() {
		sizeBytes += meta.Size
	}
	return c.index.Len(), sizeBytes
}

// Clear removes all cached tiles
func (c *TileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index.Purge()
	return c.saveMetadata()
}

// Path returns the base directory of the cache
func (c *TileCache) Path() string {
	return c.baseDir
}

// loadMetadata loads the index, oldest access first so LRU order survives restarts
func (c *TileCache) loadMetadata() error {
	data, err := os.ReadFile(filepath.Join(c.baseDir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("metadata file not found")
		}
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	var entries []*TileMetadata
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}

	for _, meta := range sortByAccess(entries) {
		c.index.Add(meta.Key, meta)
	}
	return nil
}

// saveMetadata writes the index atomically. Caller holds c.mu.
func (c *TileCache) saveMetadata() error {
	entries := c.index.Values()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metaPath := filepath.Join(c.baseDir, indexFile)
	tempPath := metaPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tempPath, metaPath); err != nil {
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}
	return nil
}

// rebuildMetadata rebuilds the index by scanning the cache directory
func (c *TileCache) rebuildMetadata() error {
	var entries []*TileMetadata

	err := filepath.Walk(c.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".tile" {
			return nil
		}

		// Parse path: {provider}/{z}/{x}/{y}.tile
		relPath, _ := filepath.Rel(c.baseDir, path)
		parts := strings.Split(relPath, string(os.PathSeparator))
		if len(parts) != 4 {
			return nil
		}

		z, errZ := strconv.Atoi(parts[1])
		x, errX := strconv.Atoi(parts[2])
		y, errY := strconv.Atoi(strings.TrimSuffix(parts[3], ".tile"))
		if errZ != nil || errX != nil || errY != nil {
			return nil
		}

		entries = append(entries, &TileMetadata{
			Key:        BuildKey(parts[0], z, x, y),
			Provider:   parts[0],
			Z:          z,
			X:          x,
			Y:          y,
			Size:       info.Size(),
			AccessTime: info.ModTime(),
			CreateTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan cache directory: %w", err)
	}

	for _, meta := range sortByAccess(entries) {
		c.index.Add(meta.Key, meta)
	}

	log.Printf("[TileCache] Rebuilt index with %d tiles", len(entries))
	return c.saveMetadata()
}
