package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/routegate/gateway/pkg/contracts"
)

// BruteForceANN is an in-memory nearest-centroid index built over the
// artifact's `centroids` asset (a JSON array of equal-length float vectors).
// Query is a linear scan — fine at the cluster counts this gateway deals
// with (low hundreds); a production deployment swaps in a real vector
// index behind the same contracts.ANNIndex interface.
type BruteForceANN struct {
	client *http.Client

	mu        sync.RWMutex
	centroids [][]float64
}

// NewBruteForceANN creates an empty index; call Load to populate it.
func NewBruteForceANN(client *http.Client) *BruteForceANN {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &BruteForceANN{client: client}
}

var _ contracts.ANNIndex = (*BruteForceANN)(nil)

// Load (re)builds the index from a centroids asset reference: a local file
// path, or an http(s)/s3/gs URL resolved the same way the Artifact Store
// resolves its own remote assets.
func (a *BruteForceANN) Load(ctx context.Context, centroidsRef string) error {
	data, err := a.fetch(ctx, centroidsRef)
	if err != nil {
		return fmt.Errorf("load centroids: %w", err)
	}

	var centroids [][]float64
	if err := json.Unmarshal(data, &centroids); err != nil {
		return fmt.Errorf("unmarshal centroids: %w", err)
	}

	a.mu.Lock()
	a.centroids = centroids
	a.mu.Unlock()
	return nil
}

func (a *BruteForceANN) fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty centroids reference")
	}
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return a.fetchRemote(ctx, ref)
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, _ := strings.Cut(strings.TrimPrefix(ref, "s3://"), "/")
		return a.fetchRemote(ctx, "https://"+bucket+".s3.amazonaws.com/"+key)
	case strings.HasPrefix(ref, "gs://"):
		return a.fetchRemote(ctx, "https://storage.googleapis.com/"+strings.TrimPrefix(ref, "gs://"))
	case strings.HasPrefix(ref, "file://"):
		return os.ReadFile(strings.TrimPrefix(ref, "file://"))
	default:
		return os.ReadFile(ref)
	}
}

func (a *BruteForceANN) fetchRemote(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("centroids fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// NumClusters reports K, the cluster count the loaded index covers.
func (a *BruteForceANN) NumClusters() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.centroids)
}

// Query returns the topK nearest centroids to vector, sorted ascending by
// distance, via a linear scan over the loaded centroid set.
func (a *BruteForceANN) Query(ctx context.Context, vector []float64, topK int) ([]contracts.ClusterMatch, error) {
	a.mu.RLock()
	centroids := a.centroids
	a.mu.RUnlock()

	if len(centroids) == 0 {
		return nil, fmt.Errorf("ann index has no loaded centroids")
	}

	matches := make([]contracts.ClusterMatch, 0, len(centroids))
	for id, c := range centroids {
		matches = append(matches, contracts.ClusterMatch{
			ClusterID: id,
			Distance:  euclidean(vector, c),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })

	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	// Penalize dimension mismatch so malformed centroid assets don't win ties.
	sum += float64(abs(len(a)-len(b))) * 4.0
	return math.Sqrt(sum)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
