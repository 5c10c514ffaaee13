// Package executor runs a bundle inside a WebAssembly JavaScript interpreter,
// isolating untrusted module code from the host process.
//
// # Overview
//
// The executor manages WASM module compilation, caching, and execution
// through wazero. Each run starts a fresh interpreter instance; nothing is
// shared between runs except the compiled module.
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	lang, err := javascript.Load("qjs.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result := exec.RunBundle(ctx, lang, b)
//	fmt.Println(result.Output)
//
// # Capabilities
//
// By default, sandboxed code has no access to the network or to storage.
// Enable capabilities explicitly per run:
//
//	exec.RunBundle(ctx, lang, b,
//	    executor.WithAllowedHosts([]string{"api.example.com"}),
//	    executor.WithStore(st, "app"),
//	)
//
// # Host Calls
//
// Guest code calls host functions by writing \x00DB:{"fn":...,"args":{...}}\x00
// to stderr and reading one JSON line, {"data":...} or {"error":...}, from
// stdin. Other stderr output is passed through to the result.
package executor
