/*
Package monitoring provides Prometheus metrics for the selection store.

# Overview

Metrics are registered on an explicit prometheus.Registerer so that
several stores (or several tests) can live in one process. All recording
methods are nil-safe: components that were built without metrics simply
skip recording.

# Features

- Store transactions (count, latency), opens and schema upgrades
- Registry size
- Native persistence, saga compensations and reconciliation sweeps
- Transient session population and expiry reasons
- Drift detections and permission probe outcomes

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	metrics.RecordStoreOp("registry", "readwrite", "success", time.Millisecond)

# Metrics Endpoint

Expose metrics via the standard Prometheus handler:

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
*/
package monitoring
