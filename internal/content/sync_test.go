package content_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"bitquiz-service/internal/content"
	"bitquiz-service/internal/domain"
	"bitquiz-service/internal/infra/memory"
	"bitquiz-service/internal/logging"
)

func TestCacheKey(t *testing.T) {
	key := content.CacheKey("https://example.com/inf02.json")
	if key != "quiz_cache_https://example.com/inf02.json" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func TestLocalName(t *testing.T) {
	if got := content.LocalName("/images/q/12.png"); got != "_images_q_12.png" {
		t.Fatalf("unexpected local name %q", got)
	}
}

func TestResolveFetchesAndCaches(t *testing.T) {
	set := testSet(3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	cache := memory.NewContentCache()
	sync := content.NewSynchronizer(srv.Client(), cache, nil, nil, logging.Nop())

	got, err := sync.Resolve(context.Background(), srv.URL, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(got))
	}

	payload, ok, err := cache.Get(context.Background(), content.CacheKey(srv.URL))
	if err != nil || !ok {
		t.Fatalf("expected a cache entry after resolve, ok=%v err=%v", ok, err)
	}
	var cached domain.QuestionSet
	if err := json.Unmarshal(payload, &cached); err != nil {
		t.Fatalf("cached payload unparseable: %v", err)
	}
	if len(cached) != 3 {
		t.Fatalf("cache holds %d questions, want 3", len(cached))
	}
}

func TestResolveOfflineFallbackRequiresEntitlement(t *testing.T) {
	set := testSet(2)
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	cache := memory.NewContentCache()
	sync := content.NewSynchronizer(srv.Client(), cache, nil, nil, logging.Nop())
	ctx := context.Background()

	// Warm the cache while the network works.
	if _, err := sync.Resolve(ctx, srv.URL, false); err != nil {
		t.Fatalf("warm resolve: %v", err)
	}

	fail.Store(true)

	// Free caller: network failure surfaces, cache is ignored.
	if _, err := sync.Resolve(ctx, srv.URL, false); !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable for free caller, got %v", err)
	}

	// Entitled caller falls back to the cached payload, repeatedly.
	for i := 0; i < 2; i++ {
		got, err := sync.Resolve(ctx, srv.URL, true)
		if err != nil {
			t.Fatalf("offline resolve %d: %v", i, err)
		}
		if len(got) != 2 {
			t.Fatalf("offline resolve %d returned %d questions, want 2", i, len(got))
		}
	}
}

func TestResolveEmptyCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sync := content.NewSynchronizer(srv.Client(), memory.NewContentCache(), nil, nil, logging.Nop())

	_, err := sync.Resolve(context.Background(), srv.URL, true)
	if !errors.Is(err, domain.ErrEmptyCache) {
		t.Fatalf("expected ErrEmptyCache, got %v", err)
	}
}

func TestResolveEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	sync := content.NewSynchronizer(srv.Client(), memory.NewContentCache(), nil, nil, logging.Nop())

	_, err := sync.Resolve(context.Background(), srv.URL, false)
	if !errors.Is(err, domain.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestMediaMirroredOnceWithDeterministicNames(t *testing.T) {
	var downloads atomic.Int32
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		w.Write([]byte("png-bytes"))
	}))
	defer assets.Close()

	dir := t.TempDir()
	store, err := content.NewMediaStore(dir, assets.URL, assets.Client())
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	set := testSet(1)
	set[0].Media = &domain.Media{Kind: domain.MediaImage, URI: "/images/q1.png"}
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer source.Close()

	sync := content.NewSynchronizer(source.Client(), memory.NewContentCache(), store, nil, logging.Nop())
	ctx := context.Background()

	got, err := sync.Resolve(ctx, source.URL, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got[0].Media == nil || got[0].Media.LocalFileName != "_images_q1.png" {
		t.Fatalf("expected resolved local file name, got %+v", got[0].Media)
	}
	if _, err := os.Stat(filepath.Join(dir, "_images_q1.png")); err != nil {
		t.Fatalf("mirrored file missing: %v", err)
	}

	// A second resolve finds the file on disk and must not re-download.
	if _, err := sync.Resolve(ctx, source.URL, false); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if n := downloads.Load(); n != 1 {
		t.Fatalf("expected exactly one asset download, got %d", n)
	}
}

func TestMediaFailureDegradesToRemotePath(t *testing.T) {
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer assets.Close()

	store, err := content.NewMediaStore(t.TempDir(), assets.URL, assets.Client())
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	set := testSet(1)
	set[0].Media = &domain.Media{Kind: domain.MediaImage, URI: "/gone.png"}
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer source.Close()

	sync := content.NewSynchronizer(source.Client(), memory.NewContentCache(), store, nil, logging.Nop())

	got, err := sync.Resolve(context.Background(), source.URL, false)
	if err != nil {
		t.Fatalf("resolve must survive a media failure: %v", err)
	}
	if got[0].Media.LocalFileName != "" {
		t.Fatalf("expected LocalFileName unset on download failure, got %q", got[0].Media.LocalFileName)
	}
}

func TestSyncAllSkipsFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(testSet(2))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	cache := memory.NewContentCache()
	catalog := []domain.QuizDefinition{
		{ID: "good", SourceURL: good.URL},
		{ID: "bad", SourceURL: bad.URL},
	}
	sync := content.NewSynchronizer(good.Client(), cache, nil, catalog, logging.Nop())

	sync.SyncAll(context.Background())

	if _, ok, _ := cache.Get(context.Background(), content.CacheKey(good.URL)); !ok {
		t.Fatalf("expected the good quiz to be cached")
	}
	if _, ok, _ := cache.Get(context.Background(), content.CacheKey(bad.URL)); ok {
		t.Fatalf("the failing quiz must not leave a cache entry")
	}
}

func testSet(n int) domain.QuestionSet {
	set := make(domain.QuestionSet, 0, n)
	for i := 0; i < n; i++ {
		correct := 0
		set = append(set, domain.Question{
			ID:                 i + 1,
			Text:               "q",
			Answers:            []string{"a", "b"},
			CorrectAnswerIndex: &correct,
		})
	}
	return set
}
