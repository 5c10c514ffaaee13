package executor

import (
	"time"

	"github.com/caffeineduck/deltabundle/hostfunc"
	"github.com/caffeineduck/deltabundle/logger"
	"github.com/caffeineduck/deltabundle/store"
)

// Option configures execution behavior.
type Option func(*runConfig)

type runConfig struct {
	timeout      time.Duration
	allowedHosts []string
	store        store.Store
	namespace    string
	// Security limits
	kvOptions        []hostfunc.KVOption
	httpMaxURLLength int
	httpMaxBodySize  int64
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithAllowedHosts sets the list of hosts that HTTP requests can access.
func WithAllowedHosts(hosts []string) Option {
	return func(c *runConfig) {
		c.allowedHosts = hosts
	}
}

// WithStore exposes s to the guest as kv_get and kv_set, with every key
// prefixed by namespace.
func WithStore(s store.Store, namespace string) Option {
	return func(c *runConfig) {
		c.store = s
		c.namespace = namespace
	}
}

// Security limit options

// WithKVMaxKeySize sets the maximum key size for KV store operations.
func WithKVMaxKeySize(size int) Option {
	return func(c *runConfig) {
		c.kvOptions = append(c.kvOptions, hostfunc.WithMaxKeySize(size))
	}
}

// WithKVMaxValueSize sets the maximum value size for KV store operations.
func WithKVMaxValueSize(size int) Option {
	return func(c *runConfig) {
		c.kvOptions = append(c.kvOptions, hostfunc.WithMaxValueSize(size))
	}
}

// WithHTTPMaxURLLength sets the maximum URL length for HTTP requests.
func WithHTTPMaxURLLength(size int) Option {
	return func(c *runConfig) {
		c.httpMaxURLLength = size
	}
}

// WithHTTPMaxBodySize sets the maximum response body size for HTTP requests.
func WithHTTPMaxBodySize(size int64) Option {
	return func(c *runConfig) {
		c.httpMaxBodySize = size
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
	log              *logger.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses
// ~/.cache/deltabundle or XDG_CACHE_HOME/deltabundle.
//
//	executor.New(registry, executor.WithDiskCache())            // default dir
//	executor.New(registry, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules, in
// 64KB pages. Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithLogger sets the executor's logger.
func WithLogger(l *logger.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.log = l
	}
}

// MemoryLimitMB converts megabytes to pages for WithMemoryLimit.
func MemoryLimitMB(mb uint32) uint32 {
	return mb * 16
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
