// Package deltabundle loads CommonJS bundles incrementally.
//
// # Overview
//
// An application is shipped as a bundle: a version, a list of entry modules
// and a table of named module functions. The loader keeps the last bundle in
// a key-value store. On the next start it fetches only the diff since the
// cached version, applies it, persists the result and runs the entry
// modules.
//
// # Basic Usage
//
//	vm := script.NewVM(script.WithConsole(os.Stdout))
//	l, _ := loader.New(loader.Config{
//	    SourceURL: "https://cdn.example/app/bundle.json",
//	    DiffURL:   "https://cdn.example/app/diff/%v.json",
//	}, vm, loader.WithStore(fileStore))
//
//	engine, err := l.Initialize(ctx)
//	exports, err := engine.Require("main.js")
//
// # Chaining
//
// Several engines may share one host. A lazily loaded feature bundle can
// require modules of the base bundle, and the base bundle can require
// modules the feature bundle added:
//
//	base, _ := resolver.Start(vm, baseBundle, resolver.WithSlot(slot))
//	feature, _ := resolver.Start(vm, featureBundle, resolver.WithSlot(slot))
//
// # Sandboxed Execution
//
// A bundle can also run whole inside a QuickJS WebAssembly build, with no
// host access unless enabled:
//
//	exec, _ := executor.New(hostfunc.NewRegistry())
//	defer exec.Close()
//
//	lang, _ := javascript.Load("qjs.wasm")
//	result := exec.RunBundle(ctx, lang, b,
//	    executor.WithStore(kvStore, "kv"),
//	    executor.WithAllowedHosts([]string{"api.example.com"}))
//
// See the [loader], [resolver], [codec], [bundle], [store], [fetch] and
// [executor] packages for detailed API documentation.
package deltabundle
