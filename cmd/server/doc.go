// Package main is the entry point for the omnik server.
//
// omnik drives interactive Claude Code sessions for remote clients. Each
// session is a Claude Code process running in its own pseudo-terminal and
// workspace; its output is cleaned, split into units, classified, and served
// over REST and WebSocket.
//
// Architecture:
//
//	Client (REST / WebSocket) → omnik → Claude Code (PTY per session)
//	                                  → SQLite (sessions, messages, audit)
//	                                  → Webhook (prompts needing action)
//
// The server provides:
//   - REST API for sessions, messages, and workspace files
//   - WebSocket streaming of output units
//   - Prometheus metrics at /metrics
//   - Idle session reaping and crash-loop protection
//
// Configuration:
//   - Environment variables (12-factor)
//   - Secret files under SECRETS_DIR
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
