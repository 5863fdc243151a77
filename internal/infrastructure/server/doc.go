// Package server assembles the PenEditor backend: configuration, logging,
// metrics, the session manager, the gin router with its middleware chain,
// the WebSocket console stream and the embedded static assets
// (/static/view.css and /static/relay.js) that every preview links.
package server
