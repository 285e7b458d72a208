// Package config provides 12-factor configuration management.
//
// Configuration is loaded from environment variables with sensible defaults.
// Secrets (the Anthropic API key, the webhook URL) are read from files under
// SECRETS_DIR first, the way container orchestrators mount them, and fall back
// to the environment.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP and per-owner rate limiting
//   - Sessions: Claude Code command, workspaces, limits and timeouts
//   - Auth: Optional single authorized owner
//   - Storage: SQLite database location
//   - Rules: Optional heuristics override file
//   - Notify: Outbound webhook
//   - Tracing: OpenTelemetry exporter
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_REQUESTS
//   - WORKSPACE_BASE, MAX_SESSIONS, SESSION_TIMEOUT_HOURS, CLAUDE_COMMAND, CLAUDE_ARGS
//   - SEND_TIMEOUT, TERMINATE_GRACE, REAP_SCHEDULE
//   - AUTHORIZED_USER_ID, DATABASE_URL, ANTHROPIC_API_KEY, SECRETS_DIR
//   - RULES_FILE, NOTIFY_WEBHOOK_URL, TRACING_ENABLED, TRACING_EXPORTER
package config
