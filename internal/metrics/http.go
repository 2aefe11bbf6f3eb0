// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts API requests by method, route and status.
	// Latency histograms live in the api middleware next to the response
	// writer that captures the status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_http_requests_total",
		Help: "Total number of HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	// HTTPRateLimitedTotal counts requests refused by the rate limiter.
	HTTPRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refcap_http_rate_limited_total",
		Help: "Total number of HTTP requests rejected by the rate limiter",
	})
)
