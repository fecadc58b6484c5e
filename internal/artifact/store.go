// Package artifact implements the Artifact Store (§4.B): it loads,
// validates, caches, and hot-reloads the routing policy artifact from one
// of three URL schemes, with the same three-tier degrade-to-last-known-good
// idiom the Control Plane's Catalog Refresher also follows.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// defaultFreshWindow is how long an in-memory artifact is served without
// refetch when cfg.FreshWindow is unset.
const defaultFreshWindow = 10 * time.Minute

// Store owns the current routing artifact exclusively; readers obtain a
// snapshot reference valid for the duration of one request.
type Store struct {
	cfg    config.ArtifactConfig
	client *http.Client

	mu       sync.RWMutex
	current  *models.Artifact
	degraded bool

	stopCh chan struct{}
}

// NewStore creates an artifact store. Call Load once at startup to populate
// it, then Start to begin the hot-reload ticker.
func NewStore(cfg config.ArtifactConfig) *Store {
	return &Store{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		stopCh: make(chan struct{}),
	}
}

// Current returns the in-memory artifact snapshot, or nil if none has ever
// been loaded.
func (s *Store) Current() *models.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Degraded reports whether the store is operating on the hard-coded
// emergency artifact because no remote source and no disk cache were
// available (§7 artifact_unavailable).
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Start begins the hot-reload background ticker (§4.B), driven by
// cfg.ReloadInterval (default 5 min).
func (s *Store) Start(ctx context.Context) {
	interval := s.cfg.ReloadInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Load(ctx, false); err != nil {
					log.Warn().Err(err).Msg("artifact hot-reload failed")
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the hot-reload ticker.
func (s *Store) Stop() { close(s.stopCh) }

// Load implements the four-step cache/fetch/fallback/emergency ladder of
// §4.B.
func (s *Store) Load(ctx context.Context, forceRefresh bool) (*models.Artifact, error) {
	// (1) fresh in-memory copy, no force refresh.
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	freshWindow := s.cfg.FreshWindow
	if freshWindow <= 0 {
		freshWindow = defaultFreshWindow
	}
	if cur != nil && !forceRefresh && time.Since(cur.LoadedAt) < freshWindow {
		return cur, nil
	}

	// (2) fetch from remote source, validate, replace.
	art, err := s.fetchAndValidate(ctx)
	if err == nil {
		s.setCurrent(art, false)
		_ = s.writeDiskCache(art)
		return art, nil
	}
	log.Warn().Err(err).Msg("artifact remote fetch failed, falling back to disk cache")

	// (3) fall back to the on-disk copy.
	if diskArt, diskErr := s.readDiskCache(); diskErr == nil {
		s.setCurrent(diskArt, false)
		return diskArt, nil
	}

	// (4) synthesize the hard-coded emergency artifact.
	log.Error().Msg("artifact unavailable: no remote source and no disk cache, loading emergency artifact")
	emergency := EmergencyArtifact()
	s.setCurrent(emergency, true)
	return emergency, fmt.Errorf("%w: no remote source or disk cache available", artifactUnavailableErr{})
}

type artifactUnavailableErr struct{}

func (artifactUnavailableErr) Error() string { return string(models.ErrArtifactUnavailable) }

func (s *Store) setCurrent(a *models.Artifact, degraded bool) {
	a.LoadedAt = time.Now()
	s.mu.Lock()
	s.current = a
	s.degraded = degraded
	s.mu.Unlock()
}

func (s *Store) fetchAndValidate(ctx context.Context) (*models.Artifact, error) {
	if s.cfg.URL == "" {
		return nil, fmt.Errorf("no artifact store URL configured")
	}
	data, err := s.fetch(ctx, s.cfg.URL)
	if err != nil {
		return nil, err
	}
	var art models.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("%w: %v", artifactInvalidErr{}, err)
	}
	if err := Validate(&art); err != nil {
		return nil, err
	}
	return &art, nil
}

type artifactInvalidErr struct{}

func (artifactInvalidErr) Error() string { return string(models.ErrInvalidArtifact) }

// fetch dispatches on the artifact URL's scheme: local file, HTTP(S), or
// object store (s3://bucket/key and gs://bucket/object are rewritten to the
// provider's HTTPS object URL and fetched with the same http.Client).
func (s *Store) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return s.fetchRemote(ctx, ref)
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, _ := strings.Cut(strings.TrimPrefix(ref, "s3://"), "/")
		return s.fetchRemote(ctx, "https://"+bucket+".s3.amazonaws.com/"+key)
	case strings.HasPrefix(ref, "gs://"):
		return s.fetchRemote(ctx, "https://storage.googleapis.com/"+strings.TrimPrefix(ref, "gs://"))
	case strings.HasPrefix(ref, "file://"):
		return os.ReadFile(strings.TrimPrefix(ref, "file://"))
	default:
		return os.ReadFile(ref)
	}
}

func (s *Store) fetchRemote(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifact fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Store) diskCachePath() string {
	dir := s.cfg.CacheDir
	if dir == "" {
		dir = "./.cache/artifacts"
	}
	return filepath.Join(dir, "latest.json")
}

func (s *Store) writeDiskCache(a *models.Artifact) error {
	path := s.diskCachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) readDiskCache() (*models.Artifact, error) {
	data, err := os.ReadFile(s.diskCachePath())
	if err != nil {
		return nil, err
	}
	var art models.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, err
	}
	if err := Validate(&art); err != nil {
		return nil, err
	}
	return &art, nil
}
