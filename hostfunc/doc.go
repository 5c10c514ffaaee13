// Package hostfunc provides the host functions a sandboxed bundle may call.
//
// Sandboxed code has no implicit access to system resources. Each capability
// is a [Func] registered by name in a [Registry]:
//
//	kv := hostfunc.NewKV(st, hostfunc.WithNamespace("app"))
//	registry.Register("kv_get", kv.Get)
//	registry.Register("kv_set", kv.Set)
//
//	h := hostfunc.NewHTTP(hostfunc.HTTPConfig{AllowedHosts: []string{"api.example.com"}})
//	registry.Register("http_request", h.Request)
//
// KV data lives in a store.Store under a namespace prefix. HTTP requests are
// limited to allowed hosts, and URL and body sizes are capped.
package hostfunc
