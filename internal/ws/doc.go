// Package ws streams a session's console over WebSocket.
//
// The server pushes every console entry as it is relayed and accepts edits
// and run requests from the client, so an editor can work over one socket.
//
// Message Types (Client → Server):
//   - run: Hard-reload the preview
//   - set_fragment: Replace one fragment ({"kind": "js", "text": "...", "run": true})
//   - append_library: Add a library URL ({"url": "..."})
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection established, carries client_id and generation
//   - console: One console entry
//   - ack: Request applied, carries generation
//   - pong: Reply to ping
//   - closed: The session was closed
//   - error: Request failed
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, logger)
//	router.GET("/sessions/:id/stream", handler.HandleConnection)
package ws
