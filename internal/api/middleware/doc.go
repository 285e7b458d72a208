// Package middleware provides the gin middleware stack for the session API.
//
//   - CORS: cross-origin access for browser clients
//   - Owner: resolves X-User-ID and enforces AUTHORIZED_USER_ID
//   - RateLimit: per-IP token buckets with idle cleanup
//   - MessageLimiter: per-owner message budget shared with the WebSocket
//   - Logger and Recovery: zap request logging and panic recovery
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger), middleware.CORS(middleware.DefaultCORSConfig()))
//	api := router.Group("/", middleware.Owner(id, restrict))
package middleware
