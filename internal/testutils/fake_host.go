package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/dpfwatch/internal/host"
)

// ErrInjected is a stand-in failure for fakes
var ErrInjected = errors.New("injected failure")

// FakeHost is an in-memory host.Host with failure injection.
type FakeHost struct {
	mu         sync.Mutex
	acquireErr error
	updateErr  error
	releaseErr error
	onAcquire  func(ctx context.Context) error

	nextID   uint64
	active   map[uint64]host.Metadata
	acquired int
	released int
	updates  []host.Metadata
}

// NewFakeHost creates a host that accepts every request
func NewFakeHost() *FakeHost {
	return &FakeHost{active: make(map[uint64]host.Metadata)}
}

// FailAcquire makes later Acquire calls return err (nil restores success)
func (h *FakeHost) FailAcquire(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acquireErr = err
}

// FailUpdate makes later UpdateStatus calls return err
func (h *FakeHost) FailUpdate(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updateErr = err
}

// FailRelease makes later Release calls return err. The handle is still dropped.
func (h *FakeHost) FailRelease(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseErr = err
}

// OnAcquire installs a hook run at the start of Acquire; a returned error fails it.
func (h *FakeHost) OnAcquire(fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAcquire = fn
}

func (h *FakeHost) Acquire(ctx context.Context, md host.Metadata) (host.Handle, error) {
	h.mu.Lock()
	hook := h.onAcquire
	h.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return host.Handle{}, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.acquireErr != nil {
		return host.Handle{}, h.acquireErr
	}
	h.nextID++
	h.active[h.nextID] = md
	h.acquired++
	return host.NewHandle(h.nextID), nil
}

func (h *FakeHost) UpdateStatus(handle host.Handle, md host.Metadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.updateErr != nil {
		return h.updateErr
	}
	if _, ok := h.active[handle.ID()]; !ok {
		return host.ErrUnknownHandle
	}
	h.active[handle.ID()] = md
	h.updates = append(h.updates, md)
	return nil
}

func (h *FakeHost) Release(handle host.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.active[handle.ID()]; !ok {
		return host.ErrUnknownHandle
	}
	delete(h.active, handle.ID())
	h.released++
	return h.releaseErr
}

// Active returns the number of handles currently held
func (h *FakeHost) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Counts returns how many acquisitions and releases succeeded
func (h *FakeHost) Counts() (acquired, released int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acquired, h.released
}

// Current returns the metadata of the single active handle
func (h *FakeHost) Current() (host.Metadata, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, md := range h.active {
		return md, true
	}
	return host.Metadata{}, false
}

// Updates returns every metadata passed to a successful UpdateStatus
func (h *FakeHost) Updates() []host.Metadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.Metadata, len(h.updates))
	copy(out, h.updates)
	return out
}
