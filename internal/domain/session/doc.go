// Package session ties one editing workspace together.
//
// A Session owns the fragment store, the library list, and one preview: an
// execution context driven by a renderer, with a relay feeding its console.
//
// Components:
//   - Session: fragment and library mutations, run, preview, export
//   - Manager: creation, lookup and teardown of sessions
//
// Lifecycle:
//  1. Create seeds fragments and libraries from the starter template
//  2. The first run is triggered on creation when RunOnCreate is set
//  3. Edits change fragments only; Run hard-reloads the preview
//  4. Close tears down the relay, the console subscribers and the context
//
// Example Usage:
//
//	manager := session.NewManager(session.DefaultOptions(), logger)
//	sess, err := manager.Create()
//	sess.SetText(fragment.Script, `console.log("hi")`)
//	sess.Run()
package session
