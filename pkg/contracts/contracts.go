// Package contracts defines the interfaces that sit between the gateway's
// core pipeline and its pluggable collaborators: the embedding/ANN pair the
// feature extractor depends on, the catalog's upstream data source, the
// tuning pipeline's external trainer, and the notification channel drivers.
//
// Concrete implementations live in internal/; this package only names the
// boundary so swapping a local default (e.g. the brute-force ANN index) for
// a production one (a real vector index) is a single wiring change.
package contracts

import (
	"context"
	"time"

	"github.com/routegate/gateway/pkg/models"
)

// ── Embedding Service ───────────────────────────────────────

// EmbeddingService turns request text into fixed-dimension vectors for the
// Feature Extractor (§4.A). The gateway ships a deterministic hashing
// embedder; a production deployment points this at a real model.
type EmbeddingService interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the fixed vector length this service produces.
	Dimensions() int
}

// ── ANN Index ─────────────────────────────────────────────────

// ClusterMatch is one nearest-centroid hit: a cluster id and its distance.
type ClusterMatch struct {
	ClusterID int
	Distance  float64
}

// ANNIndex resolves an embedding to its nearest centroids for cluster
// assignment. The gateway ships an in-memory brute-force index built over
// the artifact's `centroids` asset.
type ANNIndex interface {
	// Query returns the topK nearest centroids to vector, sorted ascending
	// by distance.
	Query(ctx context.Context, vector []float64, topK int) ([]ClusterMatch, error)

	// Load (re)builds the index from a centroids asset reference (a file
	// path or URL, used as given; it is not resolved against the artifact's
	// own URL).
	Load(ctx context.Context, centroidsRef string) error

	// NumClusters reports K, the cluster count the loaded index covers.
	NumClusters() int
}

// ── Catalog Source ────────────────────────────────────────────

// CatalogSource is the Catalog Refresher's injected upstream: whatever
// fetches live provider model/pricing data. The gateway is agnostic to how
// this is implemented — a vendor API client, a static feed, a mock for
// tests — it only needs to satisfy this contract.
type CatalogSource interface {
	// Kind names the source implementation (e.g. "openrouter", "static").
	Kind() string

	// FetchCatalog returns the current known model entries.
	FetchCatalog(ctx context.Context) ([]models.ModelCatalogEntry, error)
}

// ── Training Runner ───────────────────────────────────────────

// TrainingRunnerResult is what a completed tuning run hands back: enough to
// build a new Artifact plus whatever staging metadata the control plane's
// canary stage wants to record.
type TrainingRunnerResult struct {
	ArtifactVersion string
	Alpha           float64
	Thresholds      models.Thresholds
	Penalties       models.Penalties
	QHat             map[string][]float64
	CHat             map[string]float64
	GBDT             models.GBDTHandle
	Centroids        string
	NumClusters      int
	BucketCandidates map[models.Bucket][]string
}

// TrainingRunner is the Tuning Pipeline's injected external trainer (§4.I).
// The control plane never shells out or trains directly; it hands a window
// of metric records to this interface and gets back a candidate artifact.
type TrainingRunner interface {
	// Train runs one tuning cycle over the supplied metric records and
	// returns a new artifact candidate.
	Train(ctx context.Context, records []models.MetricRecord) (*TrainingRunnerResult, error)
}

// ── Notification ──────────────────────────────────────────────

// NotificationEvent is the payload dispatched through a channel driver when
// the control plane raises an emergency (rollback failure, degraded-mode
// transition).
type NotificationEvent struct {
	Type      string                 `json:"type"`
	Summary   string                 `json:"summary"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChannelDriver sends a notification event through one channel kind. The
// gateway ships a webhook driver (HMAC-signed when a secret is configured).
type ChannelDriver interface {
	// Kind identifies the channel type (e.g. "webhook").
	Kind() string

	// Send delivers the event, retrying per the driver's own policy.
	Send(ctx context.Context, event NotificationEvent) error
}
