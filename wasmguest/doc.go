// Package wasmguest runs the interpreter as a WebAssembly guest on wazero.
//
// The guest is a reactor module. It keeps the render session, hook slots
// and callback registry in its own linear memory; the host only moves
// JSON messages in and out.
//
// # Guest ABI
//
// Required exports:
//
//	memory                              linear memory
//	bridge_alloc(size i32) i32          allocate size bytes
//	bridge_free(ptr i32, size i32)      release an allocation
//	bridge_init(ptr i32, len i32) i64   load source and root component
//	bridge_render(ptr i32, len i32) i64 evaluate the root component
//	bridge_invoke(ptr i32, len i32) i64 call a registered callback
//	bridge_commit(ptr i32, len i32) i64 prune closures of old generations
//
// Every call takes a JSON request written into guest memory and returns
// the location of the JSON reply packed as ptr<<32 | len. The host frees
// the reply with bridge_free after copying it. Replies are envelopes:
//
//	{"ok": <result>}
//	{"error": {"kind": "callback_not_found", "message": "..."}}
//
// The init request carries "abi", the host's ABI revision. A guest built
// for another revision answers with a version_mismatch error.
//
// The guest may import uibridge.log(level i32, ptr i32, len i32) to write
// to the host logger, and any wasi_snapshot_preview1 function; stdout and
// stderr are forwarded to the logger as well.
package wasmguest
