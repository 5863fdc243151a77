/*
Package sandbox runs composed documents in an isolated execution context and
relays their console output back to the host.

# Overview

Three parts cooperate:

  - Renderer: drives one execution context through a {Loading, Ready} state
    machine. A reload bumps the generation; the composed document is written
    only once the context reports ready.
  - Runtime: a goja-backed execution context with its own event loop,
    a document proxy, console shim and generation-bound timers.
  - Relay: a one-way queue from the context to the host. Only log, error and
    info messages of the active generation reach the Console.

# Isolation

Every reload takes a fresh goja VM. Globals, timers and listeners of a previous
run are discarded with the VM, and any message it still emits carries a stale
generation and is dropped by the relay.

Scripts typed text/babel or text/jsx run untranspiled in goja, so JSX syntax
raises a SyntaxError here. Only the browser /preview page transpiles them.

# Usage Example

	console := sandbox.NewConsole()
	var renderer *sandbox.Renderer
	relay := sandbox.NewRelay(console, func() uint64 { return renderer.Generation() }, logger)
	runtime := sandbox.NewRuntime(sandbox.DefaultConfig(), relay.Publish, nil, logger)
	renderer = sandbox.NewRenderer(runtime, session, composer, logger)

	renderer.Reload()
*/
package sandbox
