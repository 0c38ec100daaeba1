// Package fake provides in-memory collaborator doubles for exercising
// the reconciliation engine without a real cloud service, transfer
// engine, or crypto backend. Modeled on the teacher's style of hand
// building literal fake structs in tests (see sync_engine_test.go)
// rather than generating mocks.
package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/foldersync/syncengine/internal/reconcile/collab"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// CloudClient is an in-memory CloudClient double. Mutations issued by
// the reconciler are recorded and reflected into the in-memory tree so
// tests can assert on resulting state.
type CloudClient struct {
	mu      sync.Mutex
	nodes   map[model.Handle]*model.CloudNode
	nextID  uint64
	changes chan model.CloudChange

	Moves   []model.Handle
	Renames []model.Handle
	Deletes []model.Handle
	PutName []string
}

func NewCloudClient() *CloudClient {
	return &CloudClient{
		nodes:   make(map[model.Handle]*model.CloudNode),
		changes: make(chan model.CloudChange, 64),
	}
}

func (c *CloudClient) Seed(n model.CloudNode) model.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n.Handle.IsZero() {
		n.Handle = c.allocHandle()
	}
	node := n
	c.nodes[node.Handle] = &node
	return node.Handle
}

func (c *CloudClient) allocHandle() model.Handle {
	c.nextID++
	var h model.Handle
	for i := 0; i < 8; i++ {
		h[i] = byte(c.nextID >> (8 * i))
	}
	return h
}

func (c *CloudClient) Move(_ context.Context, handle, newParent model.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.nodes[handle]
	if !ok {
		return fmt.Errorf("fake cloud: unknown handle")
	}
	node.Parent = newParent
	c.Moves = append(c.Moves, handle)
	return nil
}

func (c *CloudClient) Rename(_ context.Context, handle model.Handle, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.nodes[handle]
	if !ok {
		return fmt.Errorf("fake cloud: unknown handle")
	}
	node.Name = newName
	c.Renames = append(c.Renames, handle)
	return nil
}

func (c *CloudClient) Delete(_ context.Context, handle model.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, handle)
	c.Deletes = append(c.Deletes, handle)
	return nil
}

func (c *CloudClient) PutNodes(_ context.Context, parent model.Handle, name string, fp *model.Fingerprint) (model.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.allocHandle()
	c.nodes[h] = &model.CloudNode{
		Handle:      h,
		Parent:      parent,
		Kind:        model.CloudKindFile,
		Name:        name,
		Fingerprint: fp,
		ModTime:     time.Now(),
	}
	c.PutName = append(c.PutName, name)
	return h, nil
}

func (c *CloudClient) SetAttr(_ context.Context, handle model.Handle, fp *model.Fingerprint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.nodes[handle]
	if !ok {
		return fmt.Errorf("fake cloud: unknown handle")
	}
	node.Fingerprint = fp
	return nil
}

func (c *CloudClient) Changes() <-chan model.CloudChange {
	return c.changes
}

// Children returns the current children of parent in no particular
// order, for test assertions and for seeding an Engine's CloudTree in
// tests without a real listing RPC.
func (c *CloudClient) Children(parent model.Handle) []model.CloudNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.CloudNode
	for _, n := range c.nodes {
		if n.Parent == parent {
			out = append(out, *n)
		}
	}
	return out
}

// Transfer is a synchronous, always-succeeding Transfer double.
type Transfer struct {
	mu          sync.Mutex
	completions chan collab.TransferResult
	nextID      int
}

func NewTransfer() *Transfer {
	return &Transfer{completions: make(chan collab.TransferResult, 64)}
}

func (t *Transfer) Upload(_ context.Context, _ string, _ model.Handle, _ string) (collab.TransferHandle, error) {
	return t.complete()
}

func (t *Transfer) Download(_ context.Context, _ model.Handle, _ string) (collab.TransferHandle, error) {
	return t.complete()
}

func (t *Transfer) complete() (collab.TransferHandle, error) {
	t.mu.Lock()
	t.nextID++
	h := collab.TransferHandle(fmt.Sprintf("xfer-%d", t.nextID))
	t.mu.Unlock()
	t.completions <- collab.TransferResult{Handle: h}
	return h, nil
}

func (t *Transfer) Cancel(collab.TransferHandle) {}

func (t *Transfer) Completions() <-chan collab.TransferResult {
	return t.completions
}

// StdCrypto is a stand-in for configstore.StdCrypto, duplicated here
// (rather than imported) to keep collab/fake free of a dependency on
// configstore for tests that only need "some working Crypto".
type StdCrypto struct{}

func (StdCrypto) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Encrypt/Decrypt/HMAC are intentionally unimplemented here: tests that
// exercise configstore's wire format use configstore.StdCrypto
// directly. StdCrypto in this package exists only to satisfy callers
// that need a RandomBytes source without pulling in configstore.
func (StdCrypto) Encrypt(_, _, _ []byte) ([]byte, error) { return nil, fmt.Errorf("not implemented") }
func (StdCrypto) Decrypt(_, _, _ []byte) ([]byte, error) { return nil, fmt.Errorf("not implemented") }
func (StdCrypto) HMAC(_, _ []byte) []byte                { return nil }

// Waiter is a simple condition-variable-backed Waiter.
type Waiter struct {
	mu   sync.Mutex
	cond *sync.Cond
	woke bool
}

func NewWaiter() *Waiter {
	w := &Waiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *Waiter) WaitUntil(ctx context.Context, deadline time.Time) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		w.mu.Lock()
		for !w.woke {
			w.cond.Wait()
		}
		w.woke = false
		w.mu.Unlock()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-done:
	}
}

func (w *Waiter) Notify() {
	w.mu.Lock()
	w.woke = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// AppCallbacks records every call for test assertions.
type AppCallbacks struct {
	mu        sync.Mutex
	StateCfgs []StateCfgCall
	TreeState []TreeStateCall
	Conflicts []bool
	Stalled   []bool
	Scanning  []bool
}

type StateCfgCall struct {
	Err     model.SyncError
	Enabled bool
}

type TreeStateCall struct {
	Path  string
	State model.TreeState
}

func NewAppCallbacks() *AppCallbacks { return &AppCallbacks{} }

func (a *AppCallbacks) SyncUpdateStateConfig(_ *model.SyncConfig, err model.SyncError, enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.StateCfgs = append(a.StateCfgs, StateCfgCall{Err: err, Enabled: enabled})
}

func (a *AppCallbacks) SyncUpdateTreeState(_ *model.SyncConfig, path string, state model.TreeState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.TreeState = append(a.TreeState, TreeStateCall{Path: path, State: state})
}

func (a *AppCallbacks) SyncUpdateConflicts(_ *model.SyncConfig, has bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Conflicts = append(a.Conflicts, has)
}

func (a *AppCallbacks) SyncUpdateStalled(_ *model.SyncConfig, stalled bool, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Stalled = append(a.Stalled, stalled)
}

func (a *AppCallbacks) SyncUpdateScanning(_ *model.SyncConfig, scanning bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Scanning = append(a.Scanning, scanning)
}

var (
	_ collab.CloudClient  = (*CloudClient)(nil)
	_ collab.Transfer     = (*Transfer)(nil)
	_ collab.Waiter       = (*Waiter)(nil)
	_ collab.AppCallbacks = (*AppCallbacks)(nil)
)
