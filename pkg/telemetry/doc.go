// Package telemetry exposes Prometheus metrics for the job pipeline.
//
// Metrics owns its registry so several pipelines, or tests, can coexist in
// one process. Collector keeps the metrics current by listening to queue
// events and periodically sampling queue depth.
package telemetry
