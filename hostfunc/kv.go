package hostfunc

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeineduck/deltabundle/store"
)

const (
	DefaultKVMaxKeySize   = 256
	DefaultKVMaxValueSize = 64 * 1024
)

// KV exposes a namespaced view of a store.Store to sandboxed code.
type KV struct {
	store        store.Store
	namespace    string
	maxKeySize   int
	maxValueSize int
}

type KVOption func(*KV)

// WithNamespace prefixes every guest key with ns and a colon, keeping guest
// data away from the loader's own keys.
func WithNamespace(ns string) KVOption {
	return func(kv *KV) {
		kv.namespace = ns
	}
}

func WithMaxKeySize(n int) KVOption {
	return func(kv *KV) {
		kv.maxKeySize = n
	}
}

func WithMaxValueSize(n int) KVOption {
	return func(kv *KV) {
		kv.maxValueSize = n
	}
}

func NewKV(s store.Store, opts ...KVOption) *KV {
	kv := &KV{
		store:        s,
		namespace:    "kv",
		maxKeySize:   DefaultKVMaxKeySize,
		maxValueSize: DefaultKVMaxValueSize,
	}
	for _, opt := range opts {
		opt(kv)
	}
	return kv
}

func (kv *KV) key(k string) (string, error) {
	if k == "" {
		return "", errors.New("key required")
	}
	if len(k) > kv.maxKeySize {
		return "", fmt.Errorf("key exceeds max size (%d bytes)", kv.maxKeySize)
	}
	if kv.namespace == "" {
		return k, nil
	}
	return kv.namespace + ":" + k, nil
}

// Get returns the stored string, the request's default, or nil.
func (kv *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	var req KVGetRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	key, err := kv.key(req.Key)
	if err != nil {
		return nil, err
	}
	v, ok, err := kv.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		if req.Default != nil {
			return *req.Default, nil
		}
		return nil, nil
	}
	return v, nil
}

func (kv *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	var req KVSetRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	key, err := kv.key(req.Key)
	if err != nil {
		return nil, err
	}
	if len(req.Value) > kv.maxValueSize {
		return nil, fmt.Errorf("value exceeds max size (%d bytes)", kv.maxValueSize)
	}
	if err := kv.store.Write(ctx, key, req.Value); err != nil {
		return nil, err
	}
	return "ok", nil
}
