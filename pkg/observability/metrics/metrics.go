package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	publishAccepted      atomic.Int64
	publishQuotaDenied   atomic.Int64
	publishRejected      atomic.Int64
	publishFailed        atomic.Int64
	sweepRuns            atomic.Int64
	sweepDeleted         atomic.Int64
	sweepKept            atomic.Int64
	identityLookupFailed atomic.Int64
)

type PublishOutcome int

const (
	PublishAccepted PublishOutcome = iota
	PublishQuotaDenied
	PublishRejected
	PublishFailed
)

func ObservePublish(outcome PublishOutcome) {
	switch outcome {
	case PublishAccepted:
		publishAccepted.Add(1)
	case PublishQuotaDenied:
		publishQuotaDenied.Add(1)
	case PublishRejected:
		publishRejected.Add(1)
	case PublishFailed:
		publishFailed.Add(1)
	}
}

func ObserveIdentityFailure() {
	identityLookupFailed.Add(1)
}

func ObserveSweep(deleted, kept int) {
	sweepRuns.Add(1)
	sweepDeleted.Add(int64(deleted))
	sweepKept.Add(int64(kept))
}

// Snapshot returns the current counter values keyed by metric name.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"instapod_publish_accepted_total":       publishAccepted.Load(),
		"instapod_publish_quota_denied_total":   publishQuotaDenied.Load(),
		"instapod_publish_rejected_total":       publishRejected.Load(),
		"instapod_publish_failed_total":         publishFailed.Load(),
		"instapod_identity_lookup_failed_total": identityLookupFailed.Load(),
		"instapod_sweep_runs_total":             sweepRuns.Load(),
		"instapod_sweep_deleted_total":          sweepDeleted.Load(),
		"instapod_sweep_kept_total":             sweepKept.Load(),
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeCounter(w, "instapod_publish_accepted_total", "Number of submissions accepted and stored.", publishAccepted.Load())
	writeCounter(w, "instapod_publish_quota_denied_total", "Number of submissions denied by the daily quota.", publishQuotaDenied.Load())
	writeCounter(w, "instapod_publish_rejected_total", "Number of submissions rejected by validation or identity lookup.", publishRejected.Load())
	writeCounter(w, "instapod_publish_failed_total", "Number of submissions that failed on a store error.", publishFailed.Load())
	writeCounter(w, "instapod_identity_lookup_failed_total", "Number of identity lookups that returned no username.", identityLookupFailed.Load())
	writeCounter(w, "instapod_sweep_runs_total", "Number of expiry sweeps completed.", sweepRuns.Load())
	writeCounter(w, "instapod_sweep_deleted_total", "Number of records deleted by expiry sweeps.", sweepDeleted.Load())
	writeCounter(w, "instapod_sweep_kept_total", "Number of records kept by expiry sweeps.", sweepKept.Load())
}

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
