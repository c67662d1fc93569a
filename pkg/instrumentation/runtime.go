package instrumentation

import (
	"context"
	"sync/atomic"
	"time"
)

type runtimeKey struct{}

// Runtime accumulates the time spent in backend requests made with a context
// derived from WithRuntime. It is safe for concurrent use.
type Runtime struct {
	nanos    atomic.Int64
	requests atomic.Int64
}

// WithRuntime attaches a fresh Runtime to ctx. Typical use is one Runtime per
// incoming request, reported when the request completes.
func WithRuntime(ctx context.Context) (context.Context, *Runtime) {
	rt := &Runtime{}
	return context.WithValue(ctx, runtimeKey{}, rt), rt
}

// RuntimeFrom returns the Runtime attached to ctx, or nil.
func RuntimeFrom(ctx context.Context) *Runtime {
	rt, _ := ctx.Value(runtimeKey{}).(*Runtime)
	return rt
}

// Duration is the total time spent in backend requests.
func (r *Runtime) Duration() time.Duration {
	if r == nil {
		return 0
	}
	return time.Duration(r.nanos.Load())
}

// Requests is the number of backend requests.
func (r *Runtime) Requests() int64 {
	if r == nil {
		return 0
	}
	return r.requests.Load()
}

// Reset returns the accumulated duration and starts over.
func (r *Runtime) Reset() time.Duration {
	if r == nil {
		return 0
	}
	r.requests.Store(0)
	return time.Duration(r.nanos.Swap(0))
}

func (r *Runtime) add(d time.Duration) {
	if r == nil {
		return
	}
	r.nanos.Add(int64(d))
	r.requests.Add(1)
}
