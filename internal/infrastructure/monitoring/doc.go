/*
Package monitoring provides Prometheus metrics collection.

# Overview

Metrics are registered on a private registry owned by each *Metrics, so
several instances (one per test, for example) never collide.

# Metrics

- HTTP request metrics (latency, throughput, size, rate limiting)
- Session lifecycle and registry operation metrics
- Output pump metrics (units by flush reason, unit sizes)
- Response classification counts
- WebSocket connection metrics
- Webhook delivery outcomes

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "create_session")
	sess, err := registry.CreateSession(ctx, owner, name)
	timer.Stop(err)
*/
package monitoring
