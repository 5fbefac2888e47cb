// Package engine wraps wazero for the WASI host.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine   - Owns one wazero runtime and its preview1 host module
//	Module   - A compiled guest with its imports and exports recorded
//	Instance - One instantiation of a Module bound to a session state
//
// # Instantiation Flow
//
//  1. Engine.Compile() decodes and validates the binary
//  2. Module.Resolve() checks every import against the preview1 surface
//  3. Module.Instantiate() installs the host module once per engine and
//     instantiates the guest with a *preview1.State in the context
//  4. Instance.Call() runs an export with the same state attached
//
// Automatic calls to _start are disabled; the supervisor invokes the entry
// point itself so it can tell start-section traps from run-time traps.
//
// # Interruption
//
// With Config.CloseOnContextDone set (the default), a guest spinning
// without calling the host still stops once its context is cancelled or
// its deadline passes.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use.
// Instance is NOT thread-safe and should be used by a single goroutine.
//
// Most users should use the runtime package for a simpler API.
package engine
