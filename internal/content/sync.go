package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"bitquiz-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Synchronizer resolves question sets: fresh from the network when possible,
// from the cache when the caller is entitled to offline content, and runs the
// opportunistic background sweep over the catalog.
type Synchronizer struct {
	client  *http.Client
	cache   Cache
	media   *MediaStore
	catalog []domain.QuizDefinition
	log     *zap.SugaredLogger
	sf      singleflight.Group
}

func NewSynchronizer(client *http.Client, cache Cache, media *MediaStore, catalog []domain.QuizDefinition, log *zap.SugaredLogger) *Synchronizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Synchronizer{
		client:  client,
		cache:   cache,
		media:   media,
		catalog: catalog,
		log:     log,
	}
}

// Resolve returns the current question set for sourceURL. Fresh network data
// is preferred and re-cached; on network failure the cache is consulted only
// when offlineEntitled is set.
func (s *Synchronizer) Resolve(ctx context.Context, sourceURL string, offlineEntitled bool) (domain.QuestionSet, error) {
	set, fetchErr := s.fetchDeduped(ctx, sourceURL)
	if fetchErr == nil {
		if len(set) == 0 {
			return nil, domain.ErrEmptyResult
		}
		return set, nil
	}

	if !offlineEntitled {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, fetchErr)
	}

	payload, ok, err := s.cache.Get(ctx, CacheKey(sourceURL))
	if err != nil {
		return nil, fmt.Errorf("%w: cache read: %v", domain.ErrStorage, err)
	}
	if !ok {
		return nil, domain.ErrEmptyCache
	}
	var cached domain.QuestionSet
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil, fmt.Errorf("%w: cache payload: %v", domain.ErrStorage, err)
	}
	if len(cached) == 0 {
		return nil, domain.ErrEmptyResult
	}
	return cached, nil
}

// SyncAll sweeps every catalog quiz, refreshing its cache entry and media.
// Individual failures are logged and skipped; the sweep never fails as a
// whole and never surfaces errors to users.
func (s *Synchronizer) SyncAll(ctx context.Context) {
	updated := 0
	for _, def := range s.catalog {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.fetchDeduped(ctx, def.SourceURL); err != nil {
			s.log.Warnw("background sync skipped quiz", "quiz", def.ID, "error", err)
			continue
		}
		updated++
	}
	s.log.Infow("background sync finished", "updated", updated, "catalog", len(s.catalog))
}

// fetchDeduped collapses concurrent fetches of the same URL, so a foreground
// resolve racing the background sweep issues one transfer.
func (s *Synchronizer) fetchDeduped(ctx context.Context, sourceURL string) (domain.QuestionSet, error) {
	result, err, _ := s.sf.Do(sourceURL, func() (interface{}, error) {
		return s.fetch(ctx, sourceURL)
	})
	if err != nil {
		return nil, err
	}
	return result.(domain.QuestionSet), nil
}

// fetch performs one full refresh: GET, parse, mirror media, overwrite cache.
// Any transport or parse problem counts as a network failure.
func (s *Synchronizer) fetch(ctx context.Context, sourceURL string) (domain.QuestionSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", sourceURL, resp.StatusCode)
	}

	var set domain.QuestionSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("fetch %s: parse: %w", sourceURL, err)
	}

	s.mirrorMedia(ctx, set)

	payload, err := json.Marshal(set)
	if err == nil {
		err = s.cache.Set(ctx, CacheKey(sourceURL), payload)
	}
	if err != nil {
		// A failed cache write must not block fresh data.
		s.log.Warnw("cache write failed", "url", sourceURL, "error", err)
	}
	return set, nil
}

// mirrorMedia downloads image assets that are not yet on disk and resolves
// LocalFileName in place. Per-item failures leave LocalFileName unset so the
// question degrades to remote-path rendering.
func (s *Synchronizer) mirrorMedia(ctx context.Context, set domain.QuestionSet) {
	if s.media == nil {
		return
	}
	for i := range set {
		m := set[i].Media
		if m == nil || m.Kind != domain.MediaImage {
			continue
		}
		name, err := s.media.Ensure(ctx, m.URI)
		if err != nil {
			s.log.Warnw("media download failed", "uri", m.URI, "error", err)
			continue
		}
		m.LocalFileName = name
	}
}
