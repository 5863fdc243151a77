// Package config provides 12-factor configuration management for the preview service.
//
// Configuration is loaded from environment variables with sensible defaults.
// A .env file is read first when present; CLI flags override both.
//
// Configuration Sections:
//   - Server: HTTP listen address, CORS origins, session limit
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Sandbox: Script timeout, VM pool, relay buffer, library fetching
//   - Export: Default export compression
//   - Starter: Initial session template and first run
//
// Example Usage:
//
//	_ = config.LoadEnvFiles(".env")
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Address())
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS, MAX_SESSIONS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - SANDBOX_TIMEOUT, SANDBOX_POOL_SIZE, SANDBOX_FETCH_LIBRARIES, SANDBOX_LIBRARY_BASE_URL
//   - EXPORT_ENCODING, STARTER_PATH, STARTER_RUN_ON_CREATE
package config
