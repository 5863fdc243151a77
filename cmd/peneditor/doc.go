// Command peneditor runs the PenEditor preview backend.
//
// Subcommands:
//
//	serve     HTTP API, WebSocket console stream and static assets
//	compose   print the document built from a starter template
//	export    write a standalone export file
//	version   print build information
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - .env files via --env-file
//   - serve flags override both
//
// Usage:
//
//	peneditor serve --port 8000 --dev
//	peneditor compose --starter starter.yaml --preview
//	peneditor export --compress gzip --dir ./out
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
