package reconciler

import (
	"sync"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// CloudTree is the reconciler's in-memory mirror of the cloud side of
// one sync's subtree. Spec §6 is explicit that CloudNode lifecycle is
// owned externally — the core only ever reacts to
// collab.CloudClient.Changes() — so CloudTree never issues a listing
// RPC; it is built entirely by Seed (bootstrap) and Apply (ongoing
// notifications), mirroring the teacher's local cache of a flat
// collaborator-pushed state rather than a client that pulls its own
// view.
type CloudTree struct {
	mu       sync.Mutex
	nodes    map[model.Handle]model.CloudNode
	children map[model.Handle][]model.Handle
}

// NewCloudTree returns an empty tree.
func NewCloudTree() *CloudTree {
	return &CloudTree{
		nodes:    make(map[model.Handle]model.CloudNode),
		children: make(map[model.Handle][]model.Handle),
	}
}

// Seed installs n as a known node without going through a CloudChange,
// used once at startup for any node the engine already knows about
// from the persisted SyncNode tree (its CloudHandle/parent pairing).
func (t *CloudTree) Seed(n model.CloudNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insert(n)
}

// Apply folds one CloudChange into the tree: a removal detaches the
// node and its handle from its parent's child list; otherwise the node
// is inserted or re-parented as needed.
func (t *CloudTree) Apply(c model.CloudChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c.Removed {
		t.remove(c.Node.Handle)
		return
	}

	if old, ok := t.nodes[c.Node.Handle]; ok && old.Parent != c.Node.Parent {
		t.detachChild(old.Parent, c.Node.Handle)
	}
	t.insert(c.Node)
}

// Children returns parent's currently known children, a defensive
// copy safe for the caller to retain.
func (t *CloudTree) Children(parent model.Handle) []model.CloudNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	handles := t.children[parent]
	out := make([]model.CloudNode, 0, len(handles))
	for _, h := range handles {
		if n, ok := t.nodes[h]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Node returns the known node for h, if any.
func (t *CloudTree) Node(h model.Handle) (model.CloudNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[h]
	return n, ok
}

func (t *CloudTree) insert(n model.CloudNode) {
	t.nodes[n.Handle] = n
	t.attachChild(n.Parent, n.Handle)
}

func (t *CloudTree) remove(h model.Handle) {
	n, ok := t.nodes[h]
	if !ok {
		return
	}
	for _, child := range t.children[h] {
		t.remove(child)
	}
	delete(t.children, h)
	t.detachChild(n.Parent, h)
	delete(t.nodes, h)
}

func (t *CloudTree) attachChild(parent, h model.Handle) {
	for _, existing := range t.children[parent] {
		if existing == h {
			return
		}
	}
	t.children[parent] = append(t.children[parent], h)
}

func (t *CloudTree) detachChild(parent, h model.Handle) {
	siblings := t.children[parent]
	for i, existing := range siblings {
		if existing == h {
			t.children[parent] = append(siblings[:i], siblings[i+1:]...)
			return
		}
	}
}
