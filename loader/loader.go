// Package loader boots an application from a bundle kept in a persistent
// store, bringing it up to date with a diff fetched since the cached version.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caffeineduck/deltabundle/bundle"
	"github.com/caffeineduck/deltabundle/codec"
	"github.com/caffeineduck/deltabundle/fetch"
	"github.com/caffeineduck/deltabundle/logger"
	"github.com/caffeineduck/deltabundle/resolver"
	"github.com/caffeineduck/deltabundle/script"
	"github.com/caffeineduck/deltabundle/store"
)

// DefaultStorageKey is the store key the bundle is persisted under.
const DefaultStorageKey = "__bundle"

const tracerName = "github.com/caffeineduck/deltabundle/loader"

// Config names the endpoints and storage location of one application.
type Config struct {
	// SourceURL serves the full bundle. Required.
	SourceURL string
	// DiffURL serves the diff since a version; the first "%v" is replaced by
	// the cached version. Optional.
	DiffURL string
	// StorageKey defaults to DefaultStorageKey.
	StorageKey string
	// SourceRoot is prefixed to module names in debug locators. It defaults
	// to the directory of SourceURL.
	SourceRoot string
}

// Loader reconciles the cached bundle with the server and starts it.
type Loader struct {
	cfg     Config
	host    script.Host
	codec   *codec.Codec
	store   store.Store
	fetcher fetch.Fetcher
	tracer  trace.Tracer
	log     *logger.Logger

	engineOpts []resolver.Option
}

// Option configures a Loader.
type Option func(*Loader)

// WithStore sets the store the bundle is cached in. Defaults to an
// in-memory store.
func WithStore(s store.Store) Option {
	return func(l *Loader) {
		l.store = s
	}
}

// WithFetcher sets the client payloads are fetched with. Defaults to
// fetch.New().
func WithFetcher(f fetch.Fetcher) Option {
	return func(l *Loader) {
		l.fetcher = f
	}
}

// WithSlot sets the slot engines started by Initialize install themselves
// into. See resolver.WithSlot.
func WithSlot(s *resolver.Slot) Option {
	return func(l *Loader) {
		l.engineOpts = append(l.engineOpts, resolver.WithSlot(s))
	}
}

// WithLogger sets the loader's logger. It is passed on to the codec, the
// default fetcher and started engines.
func WithLogger(log *logger.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// WithTracerProvider sets the provider spans are recorded with instead of
// the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loader) {
		l.tracer = tp.Tracer(tracerName)
	}
}

// New returns a loader that compiles and runs modules on host.
func New(cfg Config, host script.Host, opts ...Option) (*Loader, error) {
	if cfg.SourceURL == "" {
		return nil, errors.New("loader: source URL is required")
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	if cfg.SourceRoot == "" {
		cfg.SourceRoot = DefaultRoot(cfg.SourceURL)
	}

	l := &Loader{cfg: cfg, host: host}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logger.OrNop(l.log)
	if l.store == nil {
		l.store = store.NewMemory()
	}
	if l.fetcher == nil {
		l.fetcher = fetch.New(fetch.WithLogger(l.log))
	}
	if l.tracer == nil {
		l.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	l.codec = codec.New(host, codec.WithRoot(cfg.SourceRoot), codec.WithLogger(l.log))
	l.engineOpts = append([]resolver.Option{resolver.WithLogger(l.log)}, l.engineOpts...)
	return l, nil
}

// Config returns the effective configuration, defaults filled in.
func (l *Loader) Config() Config { return l.cfg }

// Initialize loads the bundle and runs its entry modules on a new engine.
func (l *Loader) Initialize(ctx context.Context) (*resolver.Engine, error) {
	ctx, span := l.tracer.Start(ctx, "loader.Initialize")
	defer span.End()

	b, err := l.load(ctx, span)
	if err != nil {
		return nil, err
	}
	e, err := resolver.Start(l.host, b, l.engineOpts...)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	l.log.Info("bundle started", "version", b.Version, "entry", b.Entry)
	return e, nil
}

// Load reconciles the cached bundle with the server, persists the result
// and returns it without executing anything.
func (l *Loader) Load(ctx context.Context) (*bundle.Bundle, error) {
	ctx, span := l.tracer.Start(ctx, "loader.Load")
	defer span.End()
	return l.load(ctx, span)
}

func (l *Loader) load(ctx context.Context, span trace.Span) (*bundle.Bundle, error) {
	cached := l.readCache(ctx)

	var (
		b   *bundle.Bundle
		err error
	)
	if cached != nil {
		span.SetAttributes(attribute.String("bundle.cached_version", cached.Version.String()))
		b, err = l.update(ctx, span, cached)
	} else {
		b, err = l.fetchFull(ctx)
	}
	if err != nil {
		fail(span, err)
		return nil, err
	}

	if err := l.persist(ctx, b); err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("bundle.version", b.Version.String()),
		attribute.Int("bundle.modules", len(b.Modules)),
	)
	return b, nil
}

// readCache never fails: a missing, unreadable or corrupt cache is a miss.
func (l *Loader) readCache(ctx context.Context) *bundle.Bundle {
	text, ok, err := l.store.Read(ctx, l.cfg.StorageKey)
	if err != nil {
		l.log.Warn("cache read failed, treating as miss", "key", l.cfg.StorageKey, "error", err)
		return nil
	}
	if !ok {
		l.log.Debug("cache miss", "key", l.cfg.StorageKey)
		return nil
	}
	p, err := l.codec.Deserialize(text)
	if err != nil {
		l.log.Warn("cached bundle unreadable, treating as miss", "key", l.cfg.StorageKey, "error", err)
		return nil
	}
	if p == nil {
		return nil
	}
	return p.Bundle()
}

func (l *Loader) update(ctx context.Context, span trace.Span, cached *bundle.Bundle) (*bundle.Bundle, error) {
	target := l.cfg.SourceURL
	useDiff := l.cfg.DiffURL != "" && !cached.Version.IsZero()
	if useDiff {
		target = DiffURL(l.cfg.DiffURL, cached.Version)
	}
	span.SetAttributes(attribute.Bool("bundle.diff", useDiff))

	text, err := l.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	p, err := l.codec.Deserialize(text)
	if err != nil {
		return nil, err
	}
	from := cached.Version
	b, err := bundle.Apply(cached, p)
	if err != nil {
		return nil, err
	}
	l.log.Info("bundle updated", "from", from, "to", b.Version, "diff", useDiff)
	return b, nil
}

func (l *Loader) fetchFull(ctx context.Context) (*bundle.Bundle, error) {
	text, err := l.fetcher.Fetch(ctx, l.cfg.SourceURL)
	if err != nil {
		return nil, err
	}
	p, err := l.codec.Deserialize(text)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%s: %w", l.cfg.SourceURL, bundle.ErrEmptyPayload)
	}
	b, err := bundle.Apply(nil, p)
	if err != nil {
		return nil, err
	}
	l.log.Info("bundle fetched", "version", b.Version, "modules", len(b.Modules))
	return b, nil
}

func (l *Loader) persist(ctx context.Context, b *bundle.Bundle) error {
	text, err := l.codec.Serialize(b)
	if err != nil {
		return err
	}
	if err := l.store.Write(ctx, l.cfg.StorageKey, text); err != nil {
		return fmt.Errorf("persist bundle: %w", err)
	}
	return nil
}

// Invalidate drops the cached bundle so the next start fetches the full
// source.
func (l *Loader) Invalidate(ctx context.Context) error {
	if err := l.store.Write(ctx, l.cfg.StorageKey, ""); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	l.log.Info("cache invalidated", "key", l.cfg.StorageKey)
	return nil
}

// Cached returns the bundle currently held in the store, or nil.
func (l *Loader) Cached(ctx context.Context) (*bundle.Bundle, error) {
	text, ok, err := l.store.Read(ctx, l.cfg.StorageKey)
	if err != nil || !ok {
		return nil, err
	}
	p, err := l.codec.Deserialize(text)
	if err != nil || p == nil {
		return nil, err
	}
	return p.Bundle(), nil
}

// DiffURL fills the version into a diff URL template.
func DiffURL(template string, v bundle.Version) string {
	return strings.Replace(template, "%v", url.PathEscape(v.String()), 1)
}

// DefaultRoot returns the directory part of a source URL, ending in "/".
func DefaultRoot(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return codec.NormalizeRoot(source)
	}
	u.RawQuery, u.Fragment = "", ""
	if i := strings.LastIndex(u.Path, "/"); i >= 0 {
		u.Path = u.Path[:i+1]
	} else {
		u.Path = ""
	}
	u.RawPath = ""
	return codec.NormalizeRoot(u.String())
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
