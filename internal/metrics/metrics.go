package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Registry is a process-local counter/gauge store exposed on /metrics.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]int64
	gauges    map[string]float64
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]int64),
		gauges:    make(map[string]float64),
		startTime: time.Now(),
	}
}

// Counter names used across the core.
const (
	WebhookReceived        = "webhook_received_total"
	WebhookRejected        = "webhook_signature_rejected_total"
	MessagesIngested       = "messages_ingested_total"
	StatusUpdatesApplied   = "status_updates_applied_total"
	StatusUpdatesUnmatched = "status_updates_unmatched_total"
	MessagesSent           = "messages_sent_total"
	SendFailures           = "send_failures_total"
	RateLimitRejections    = "rate_limit_rejections_total"
	MediaFetched           = "media_fetched_total"
	MediaFailures          = "media_failures_total"
	CampaignBatches        = "campaign_batches_total"
	ScheduledSends         = "scheduled_sends_total"
)

func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

func (r *Registry) Add(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *Registry) Get(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// Snapshot returns a copy of all metrics plus uptime.
func (r *Registry) Snapshot() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	gauges := make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		gauges[k] = v
	}

	return map[string]interface{}{
		"counters":       counters,
		"gauges":         gauges,
		"uptime_seconds": time.Since(r.startTime).Seconds(),
	}
}

// Handler serves the snapshot as JSON.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Snapshot())
	}
}
