package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maybeServeMetrics starts a background /metrics HTTP server against reg
// when metricsAddr is non-empty, for long-running render/pyramid jobs.
func maybeServeMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("metrics server on %s stopped: %v", addr, err)
		}
	}()
	logger.Printf("serving metrics on http://%s/metrics", addr)
}
