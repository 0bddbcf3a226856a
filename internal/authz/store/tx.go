package store

import (
	"context"
	"maps"
	"slices"
)

// OpKind is the kind of a staged write.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpDeleteAll
)

// Op is one staged write. Drivers apply a transaction's ops in order.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
}

// Buffer stages writes on top of a base namespace. Drivers build one per
// WithTx call and apply Ops() atomically once fn succeeds.
type Buffer struct {
	base    KV
	limit   int
	ops     []Op
	staged  map[string][]byte // nil value means deleted
	cleared bool
	done    bool
}

// NewBuffer stages writes over base, enforcing limit on every Put.
func NewBuffer(base KV, limit int) *Buffer {
	return &Buffer{base: base, limit: limit, staged: map[string][]byte{}}
}

func (b *Buffer) Get(ctx context.Context, key string) ([]byte, error) {
	if b.done {
		return nil, ErrTxDone
	}
	if v, ok := b.staged[key]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return slices.Clone(v), nil
	}
	if b.cleared {
		return nil, ErrNotFound
	}
	return b.base.Get(ctx, key)
}

func (b *Buffer) Put(_ context.Context, key string, value []byte) error {
	if b.done {
		return ErrTxDone
	}
	if err := CheckSize(key, value, b.limit); err != nil {
		return err
	}
	v := slices.Clone(value)
	if v == nil {
		v = []byte{}
	}
	b.staged[key] = v
	b.ops = append(b.ops, Op{Kind: OpPut, Key: key, Value: v})
	return nil
}

func (b *Buffer) PutMulti(ctx context.Context, entries map[string][]byte) error {
	for _, k := range slices.Sorted(maps.Keys(entries)) {
		if err := CheckSize(k, entries[k], b.limit); err != nil {
			return err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(entries)) {
		if err := b.Put(ctx, k, entries[k]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) Delete(_ context.Context, key string) error {
	if b.done {
		return ErrTxDone
	}
	b.staged[key] = nil
	b.ops = append(b.ops, Op{Kind: OpDelete, Key: key})
	return nil
}

func (b *Buffer) DeleteAll(_ context.Context) error {
	if b.done {
		return ErrTxDone
	}
	clear(b.staged)
	b.cleared = true
	b.ops = append(b.ops, Op{Kind: OpDeleteAll})
	return nil
}

// Ops returns the staged writes and closes the buffer for further use.
func (b *Buffer) Ops() []Op {
	b.done = true
	return b.ops
}

// RunTx runs fn against a fresh buffer over base and hands the staged ops to
// apply when fn succeeds. Drivers use it to implement Storage.WithTx.
func RunTx(ctx context.Context, base KV, limit int, fn func(tx Tx) error, apply func(ctx context.Context, ops []Op) error) error {
	buf := NewBuffer(base, limit)
	if err := fn(buf); err != nil {
		buf.Ops()
		return err
	}
	ops := buf.Ops()
	if len(ops) == 0 {
		return nil
	}
	return apply(ctx, ops)
}
