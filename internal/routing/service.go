package routing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/geo"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the routing data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long a cached route is served without refetching (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.001 ~ 110m).
	// Requests whose endpoints share grid cells share cached routes.
	CacheGridSize float64

	// CacheSize bounds the number of cached requests (default: 256).
	CacheSize int

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 1 hour).
	StaleIfErrorTTL time.Duration

	// Store keeps the last good response per request across restarts. Optional.
	Store Store
}

// Store persists directions responses by cache key.
type Store interface {
	Put(key string, resp *DirectionsResponse) error
	Get(key string) (*DirectionsResponse, time.Time, error)
}

// Service provides routing data with caching.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	store           Store
	now             func() time.Time

	mu    sync.Mutex
	cache *expirable.LRU[string, *cachedDirections]
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.001
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = time.Hour
	}
	if staleIfErrorTTL < cacheTTL {
		staleIfErrorTTL = cacheTTL
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		store:           cfg.Store,
		now:             time.Now,
		// Entries outlive their TTL so they can be served stale on errors.
		cache: expirable.NewLRU[string, *cachedDirections](cacheSize, nil, staleIfErrorTTL),
	}
}

// GetDirections returns route directions between two points.
// Uses cached data if available and not expired.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := geo.Validate(req.Origin); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if err := geo.Validate(req.Destination); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if req.Profile == "" {
		req.Profile = ProfileWalk
	}

	cacheKey := s.cacheKey(req)

	if cached, ok := s.cache.Get(cacheKey); ok && s.now().Before(cached.expiresAt) {
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for directions")
		return cached.response, nil
	}

	return s.fetchDirections(ctx, req, cacheKey)
}

// fetchDirections fetches directions from provider and updates cache.
func (s *Service) fetchDirections(ctx context.Context, req DirectionsRequest, cacheKey string) (*DirectionsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache (prevents thundering herd)
	if cached, ok := s.cache.Get(cacheKey); ok && s.now().Before(cached.expiresAt) {
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit after double-check")
		return cached.response, nil
	}

	s.logger.Debug().
		Str("origin", req.Origin.String()).
		Str("destination", req.Destination.String()).
		Str("profile", string(req.Profile)).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	resp, err := s.provider.GetDirections(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).
			Str("origin", req.Origin.String()).
			Str("destination", req.Destination.String()).
			Str("profile", string(req.Profile)).
			Msg("failed to fetch directions")
		return s.fallback(cacheKey, err)
	}

	now := s.now()
	s.cache.Add(cacheKey, &cachedDirections{
		response:  resp,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	})

	if s.store != nil {
		if err := s.store.Put(cacheKey, resp); err != nil {
			s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("failed to persist directions")
		}
	}

	s.logger.Debug().
		Str("cache_key", cacheKey).
		Int("route_count", len(resp.Routes)).
		Msg("cached directions response")

	return resp, nil
}

// fallback serves stale data from memory, then from the store, after a
// provider error. It returns cause when neither has a usable entry.
func (s *Service) fallback(cacheKey string, cause error) (*DirectionsResponse, error) {
	if cached, ok := s.cache.Get(cacheKey); ok {
		s.logger.Warn().
			Time("fetched_at", cached.fetchedAt).
			Str("cache_key", cacheKey).
			Msg("serving stale directions data due to provider error")
		return cached.response, nil
	}

	if s.store == nil {
		return nil, cause
	}
	resp, savedAt, err := s.store.Get(cacheKey)
	if err != nil {
		s.logger.Debug().Err(err).Str("cache_key", cacheKey).Msg("no stored directions")
		return nil, cause
	}
	s.logger.Warn().
		Time("fetched_at", savedAt).
		Str("cache_key", cacheKey).
		Msg("serving stored directions due to provider error")
	return resp, nil
}

// cacheKey quantizes origin and destination onto the cache grid.
// Format: {profile}:{gridOriginLat},{gridOriginLon}:{gridDestLat},{gridDestLon}.
func (s *Service) cacheKey(req DirectionsRequest) string {
	gridOriginLat := math.Floor(req.Origin.Lat/s.cacheGridSize) * s.cacheGridSize
	gridOriginLon := math.Floor(req.Origin.Lon/s.cacheGridSize) * s.cacheGridSize
	gridDestLat := math.Floor(req.Destination.Lat/s.cacheGridSize) * s.cacheGridSize
	gridDestLon := math.Floor(req.Destination.Lon/s.cacheGridSize) * s.cacheGridSize

	return fmt.Sprintf("%s:%.4f,%.4f:%.4f,%.4f",
		req.Profile,
		gridOriginLat, gridOriginLon,
		gridDestLat, gridDestLon,
	)
}

// InvalidateCache clears all cached data. Stored responses are kept.
func (s *Service) InvalidateCache() {
	s.cache.Purge()
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	now := s.now()
	fresh := 0
	stale := 0

	for _, c := range s.cache.Values() {
		if now.Before(c.expiresAt) {
			fresh++
		} else {
			stale++
		}
	}

	return CacheStats{
		TotalEntries: s.cache.Len(),
		FreshEntries: fresh,
		StaleEntries: stale,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int    `json:"totalEntries"`
	FreshEntries int    `json:"freshEntries"`
	StaleEntries int    `json:"staleEntries"`
	Provider     string `json:"provider"`
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
