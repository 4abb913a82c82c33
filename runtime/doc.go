// Package runtime mounts one root component and keeps it live.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Initialize the interpreter and render once
//	err = rt.Run(ctx, interp.Payload{Source: src, Root: "Counter"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Deliver a native event and wait for the re-render
//	_ = rt.Dispatch(ctx, "inc", dom.Event{Type: "click"})
//	_ = rt.Wait(ctx)
//
// # Backends
//
// The interpreter is chosen by config:
//
//	starlark  - in-process Starlark components (default)
//	wasm      - a guest module implementing the bridge ABI
//
// WithInterpreter injects any other interp.Interpreter.
//
// # Failures
//
// Initialization and render failures replace the mounted tree with an error
// fallback and are returned to the caller. Callback failures are returned by
// Dispatch and leave the displayed tree untouched.
package runtime
