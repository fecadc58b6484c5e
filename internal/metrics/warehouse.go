package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// warehouseQueueCapacity bounds the pending-emission queue (§5 backpressure
// policy): on overflow the oldest pending emission is dropped.
const warehouseQueueCapacity = 1024

// warehouseEmitter POSTs metric records to a warehouse endpoint on a single
// background goroutine so Record never blocks the request path on a slow
// or unreachable warehouse.
type warehouseEmitter struct {
	url     string
	client  *http.Client
	queue   chan models.MetricRecord
	dropped int64
}

func newWarehouseEmitter(url string) *warehouseEmitter {
	e := &warehouseEmitter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan models.MetricRecord, warehouseQueueCapacity),
	}
	go e.run()
	return e
}

// emit enqueues r for best-effort delivery, dropping the oldest queued
// record on overflow rather than blocking the caller.
func (e *warehouseEmitter) emit(r models.MetricRecord) {
	select {
	case e.queue <- r:
	default:
		select {
		case <-e.queue:
			e.dropped++
		default:
		}
		select {
		case e.queue <- r:
		default:
		}
	}
}

func (e *warehouseEmitter) run() {
	for r := range e.queue {
		if err := e.post(r); err != nil {
			log.Warn().Err(err).Msg("warehouse emission failed")
		}
	}
}

func (e *warehouseEmitter) post(r models.MetricRecord) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
