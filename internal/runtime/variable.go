package runtime

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/northgate-labs/pbsm/internal/wire"
)

// Numeric is the set of fixed-width types Variable supports. The core
// treats every payload as an opaque byte blob of fixed size; Variable is a
// thin, optional marshalling layer on top of the façade so callers can
// declare, read, and write a shared value without building a full
// operator-overloading proxy around the raw byte payload themselves.
type Numeric interface {
	~int32 | ~uint32 | ~int64 | ~uint64
}

// Variable is a shared value of a fixed-width numeric type, bound to a
// stable site-derived id. It is not part of the coherence core; it is a
// convenience built on top of Context's façade methods.
type Variable[T Numeric] struct {
	ctx   *Context
	varID uint32
	size  int
}

// DeclareVariable derives a site id from file and line, creates the
// backing record with initial as its starting value, and returns a handle
// for reading and writing it. It should be called at the same source
// location on every node so all nodes derive the same id.
func DeclareVariable[T Numeric](ctx *Context, file string, line int, initial T) (*Variable[T], error) {
	v := &Variable[T]{
		ctx:   ctx,
		varID: wire.SiteID(file, line),
		size:  sizeOf(initial),
	}
	if err := ctx.OnCreate(v.varID, v.encode(initial)); err != nil {
		return nil, fmt.Errorf("runtime: declare variable at %s:%d: %w", file, line, err)
	}
	return v, nil
}

// Read blocks until the local copy is coherent, then decodes and returns
// its current value.
func (v *Variable[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := v.ctx.BeforeRead(ctx, v.varID); err != nil {
		return zero, err
	}
	rec, ok := v.ctx.registry.Lookup(v.varID)
	if !ok {
		return zero, fmt.Errorf("runtime: variable %d not found after BeforeRead", v.varID)
	}
	return v.decode(rec.Payload()), nil
}

// Write blocks until this node holds exclusive ownership, then stores
// val as the new value.
func (v *Variable[T]) Write(ctx context.Context, val T) error {
	if err := v.ctx.BeforeWrite(ctx, v.varID); err != nil {
		return err
	}
	rec, ok := v.ctx.registry.Lookup(v.varID)
	if !ok {
		return fmt.Errorf("runtime: variable %d not found after BeforeWrite", v.varID)
	}
	rec.Mu.Lock()
	rec.SetPayload(v.encode(val))
	rec.Mu.Unlock()
	v.ctx.AfterWrite(v.varID)
	return nil
}

// Destroy tears down the variable, broadcasting final as its last value.
func (v *Variable[T]) Destroy(final T) error {
	return v.ctx.OnDestroy(v.varID, v.encode(final))
}

// VarID returns the site-derived identifier backing this variable.
func (v *Variable[T]) VarID() uint32 {
	return v.varID
}

func sizeOf[T Numeric](zero T) int {
	switch any(zero).(type) {
	case int32, uint32:
		return 4
	case int64, uint64:
		return 8
	default:
		return 8
	}
}

func (v *Variable[T]) encode(val T) []byte {
	buf := make([]byte, v.size)
	switch x := any(val).(type) {
	case int32:
		binary.LittleEndian.PutUint32(buf, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(buf, x)
	case int64:
		binary.LittleEndian.PutUint64(buf, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(buf, x)
	}
	return buf
}

func (v *Variable[T]) decode(buf []byte) T {
	var zero T
	switch any(zero).(type) {
	case int32:
		return any(int32(binary.LittleEndian.Uint32(buf))).(T)
	case uint32:
		return any(binary.LittleEndian.Uint32(buf)).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(buf))).(T)
	case uint64:
		return any(binary.LittleEndian.Uint64(buf)).(T)
	}
	return zero
}
