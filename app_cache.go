package main

import (
	"recon-flyover/internal/imagery"
)

// Rate limit and cache management

// RateLimitStatus returns the current rate limit state for an imagery source
func (a *App) RateLimitStatus(provider string) *imagery.RateLimitEvent {
	return a.fetcher.RateLimits().State(provider)
}

// IsRateLimited checks if an imagery source is currently rate limited
func (a *App) IsRateLimited(provider string) bool {
	return a.fetcher.RateLimits().IsRateLimited(provider)
}

// CacheStats represents tile cache statistics
type CacheStats struct {
	Enabled   bool    `json:"enabled"`
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"sizeBytes"`
	SizeMB    float64 `json:"sizeMB"`
	CachePath string  `json:"cachePath"`
}

// GetCacheStats returns current cache statistics
func (a *App) GetCacheStats() CacheStats {
	if a.tileCache == nil {
		return CacheStats{}
	}

	entries, sizeBytes := a.tileCache.Stats()

	return CacheStats{
		Enabled:   true,
		Entries:   entries,
		SizeBytes: sizeBytes,
		SizeMB:    float64(sizeBytes) / 1024 / 1024,
		CachePath: a.tileCache.Path(),
	}
}

// ClearCache removes all cached tiles
func (a *App) ClearCache() error {
	if a.tileCache != nil {
		return a.tileCache.Clear()
	}
	return nil
}

// EvictExpiredTiles drops tiles past their TTL and returns how many went
func (a *App) EvictExpiredTiles() int {
	if a.tileCache == nil {
		return 0
	}
	return a.tileCache.EvictExpired()
}
