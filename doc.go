// Package uibridge mounts interpreter-authored UI components in a native
// retained tree.
//
// Component functions run inside an interpreter and describe their output
// as element trees. The bridge marshals those trees across the boundary,
// turns callback references into native listeners, keeps hook state between
// renders, and serializes every entry into the interpreter.
//
// # Architecture Overview
//
//	uibridge/
//	├── runtime/      Embedding facade: config, backend, mount, scheduler
//	├── scheduler/    Single-entry render loop with re-render coalescing
//	├── factory/      Builds dom nodes from marshaled elements
//	├── dispatch/     Wraps callback references as native listeners
//	├── optimistic/   Debounced, sequence-stamped controlled inputs
//	├── dom/          Retained native tree, mount point, HTML output
//	├── props/        Prop and style key transformation
//	├── interp/       Interpreter boundary, payloads, package library
//	├── session/      Hook slots, render generations, callback registry
//	├── marshal/      Interpreter values to native values and back
//	├── element/      Interpreter-side element construction
//	├── vdom/         Typed view of marshaled elements
//	├── value/        Interpreter tagged values
//	├── script/       Starlark frontend
//	├── wasmguest/    Interpreter hosted in a wazero guest module
//	├── telemetry/    OpenTelemetry spans and counters
//	├── config/       YAML configuration
//	├── tui/          Terminal host
//	└── errors/       Structured error types for debugging
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	err = rt.Run(ctx, interp.Payload{Source: src, Root: "Counter"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = rt.WriteHTML(os.Stdout)
package uibridge
