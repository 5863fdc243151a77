/*
Package monitoring provides Prometheus metrics for the playground service.

# Overview

Metrics live on a private registry so several servers can coexist in one
process (tests). The registry is exposed through Handler.

# Features

- HTTP request metrics (latency, throughput, size)
- Sandbox reloads (started vs coalesced) and document writes
- Script execution status and duration
- Relay outcomes (forwarded, dropped by reason)
- Export counts and sizes
- Session and WebSocket gauges

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
