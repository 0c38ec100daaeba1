package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/foldersync/syncengine/internal/queue"
	"github.com/foldersync/syncengine/internal/reconcile/collab"
	"github.com/foldersync/syncengine/internal/reconcile/dirnotify"
	"github.com/foldersync/syncengine/internal/reconcile/fingerprint"
	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
	"github.com/foldersync/syncengine/internal/reconcile/nodecache"
	"github.com/foldersync/syncengine/internal/reconcile/scansvc"
)

// Engine executes the decisions RunLevel/Resolve compute. RunLevel is a
// pure function over a single directory level; Engine is what spec
// §4.3.1 steps 3-5 actually call for — a recursive walk of the whole
// tree that, for every Action RunLevel hands back, issues the matching
// collab.CloudClient/collab.Transfer call, fscap.Capability mutation,
// or nodecache.Cache write, and that runs move detection and the
// cooperative suspend/wake loop around all of it.
type Engine struct {
	cfg       *model.SyncConfig
	root      *model.SyncNode
	cache     *nodecache.Cache
	fs        *fscap.Capability
	family    fscap.Family
	localRoot string

	cloud    collab.CloudClient
	transfer collab.Transfer
	tree     *CloudTree
	scan     *scansvc.Service
	cb       collab.AppCallbacks

	excl  *Exclusions
	stall *StallDetector

	immediate *queue.PriorityQueue[string]
	delayed   *queue.PriorityQueue[string]

	mu          sync.Mutex
	seq         int
	waiter      collab.Waiter
	scanResults map[uint64]scansvc.Result
	xferResults map[collab.TransferHandle]collab.TransferResult
	scannedOnce bool

	onBackupModified func()
}

// NewEngine builds an Engine for one sync. root is the in-memory
// SyncNode tree loaded from cache (nodecache.Cache.LoadTree); scan is
// this sync's own scansvc.Service, started separately, since each
// sync's Lister is root-specific (fscap.Capability.Iterate bound to
// that one root) rather than shared across syncs the way the
// CloudClient/Transfer/dirnotify collaborators are.
func NewEngine(cfg *model.SyncConfig, root *model.SyncNode, cache *nodecache.Cache, fs *fscap.Capability, cloud collab.CloudClient, transfer collab.Transfer, scan *scansvc.Service, cb collab.AppCallbacks) *Engine {
	return &Engine{
		cfg:         cfg,
		root:        root,
		cache:       cache,
		fs:          fs,
		family:      fs.Family(),
		localRoot:   cfg.LocalPath,
		cloud:       cloud,
		transfer:    transfer,
		tree:        NewCloudTree(),
		scan:        scan,
		cb:          cb,
		excl:        NewExclusions(cfg.ExclusionGlobs),
		stall:       NewStallDetector(5),
		immediate:   queue.NewPriorityQueue[string](),
		delayed:     queue.NewPriorityQueue[string](),
		scanResults: make(map[uint64]scansvc.Result),
		xferResults: make(map[collab.TransferHandle]collab.TransferResult),
	}
}

// OnBackupModified registers fn to be called whenever a pass observes
// ActionBackupModified — a cloud-side change under a BACKUP sync's
// subtree, which the owning syncset must disable rather than reconcile
// (spec §4.3.3).
func (e *Engine) OnBackupModified(fn func()) { e.onBackupModified = fn }

// Stall reports whether this engine's sync is currently stalled, and
// why, for AppCallbacks.SyncUpdateStalled-style reporting outside the
// Run loop (e.g. at sync-enable time, before the background loop has
// run a pass).
func (e *Engine) Stall() (bool, map[string]string) {
	return e.stall.Stalled(), e.stall.Reasons()
}

// EnqueueHint stages a DirtyHint's subtree for revisit on the engine's
// next pass and wakes it if it is currently suspended in Run.
func (e *Engine) EnqueueHint(absPath string, severity dirnotify.Severity) {
	rel, err := filepath.Rel(e.localRoot, absPath)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	target := filepath.ToSlash(filepath.Dir(rel))
	if target == "." || target == ".." {
		target = ""
	}
	e.enqueue(target, severity == dirnotify.Immediate)
}

// EnqueueCloudChange folds a cloud-side change into the tree and
// stages its parent subtree for revisit.
func (e *Engine) EnqueueCloudChange(c model.CloudChange) {
	e.tree.Apply(c)
	node := e.findByCloudHandle(c.Node.Parent)
	if node == nil {
		return
	}
	e.enqueue(node.Path(), true)
}

func (e *Engine) enqueue(path string, immediate bool) {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	waiter := e.waiter
	e.mu.Unlock()

	if immediate {
		e.immediate.Enqueue(path, seq)
	} else {
		e.delayed.Enqueue(path, seq)
	}
	if waiter != nil {
		waiter.Notify()
	}
}

// Run suspends on waiter between passes, waking either on its own
// notification (EnqueueHint/EnqueueCloudChange) or pollInterval's
// deadline, whichever comes first, and runs one pass per wake — the
// cooperative single-thread scheduling model spec §5 describes. It
// returns once ctx is cancelled.
func (e *Engine) Run(ctx context.Context, waiter collab.Waiter, pollInterval time.Duration) {
	e.mu.Lock()
	e.waiter = waiter
	e.mu.Unlock()

	go e.pumpCloudChanges(ctx)

	for ctx.Err() == nil {
		if err := e.RunPass(ctx); err != nil {
			slog.Warn("reconciliation pass failed", "sync", e.cfg.Name, "error", err)
		}
		waiter.WaitUntil(ctx, time.Now().Add(pollInterval))
	}
}

func (e *Engine) pumpCloudChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-e.cloud.Changes():
			if !ok {
				return
			}
			e.stall.NotifyReceived()
			e.EnqueueCloudChange(change)
		}
	}
}

// RunPass performs one full reconciliation pass: on its very first
// call it walks the whole tree unconditionally (the initial scan spec
// §4.3.1 step 1 requires), and on every later call it walks only the
// subtrees staged by EnqueueHint/EnqueueCloudChange. Immediate and
// delayed targets are merged into one set and visited in no fixed order.
func (e *Engine) RunPass(ctx context.Context) error {
	targets := e.drainQueues()

	e.mu.Lock()
	first := !e.scannedOnce
	e.scannedOnce = true
	e.mu.Unlock()
	if first {
		targets = map[string]bool{"": true}
	}

	progress := false
	reasons := make(map[string]string)
	var firstErr error

	for path := range targets {
		node := e.lookup(path)
		if node == nil {
			continue // stale hint: path no longer corresponds to a live node
		}
		p, r, err := e.visitSubtree(ctx, node)
		progress = progress || p
		for k, v := range r {
			reasons[k] = v
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := e.cache.Flush(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	e.stall.RecordPass(progress, reasons)
	if e.cb != nil {
		stalled, why := e.stall.Stalled(), e.stall.Reasons()
		e.cb.SyncUpdateStalled(e.cfg, stalled, why)
	}
	return firstErr
}

func (e *Engine) drainQueues() map[string]bool {
	out := make(map[string]bool)
	for _, p := range e.immediate.DequeueAll() {
		out[p] = true
	}
	for _, p := range e.delayed.DequeueAll() {
		out[p] = true
	}
	return out
}

func (e *Engine) lookup(path string) *model.SyncNode {
	if path == "" {
		return e.root
	}
	node := e.root
	for _, part := range strings.Split(path, "/") {
		child := node.ChildrenFold[fscap.CaseFold(e.family, part)]
		if child == nil {
			return nil
		}
		node = child
	}
	return node
}

func (e *Engine) visitSubtree(ctx context.Context, node *model.SyncNode) (progress bool, reasons map[string]string, err error) {
	reasons = make(map[string]string)
	absPath := e.absPath(node.Path())

	fsChildren, scanErr := e.scanDir(ctx, absPath)
	gate := PhaseGate{ScanTargetReachable: scanErr == nil}
	if scanErr != nil {
		reasons[node.Path()] = "scan target unreachable: " + scanErr.Error()
	} else {
		gate.ScanningWasComplete = true
	}

	cloudChildren := e.tree.Children(e.cloudHandleOf(node))

	if gate.MayDetectMoves() {
		e.applyMoves(ctx, node, fsChildren)
		gate.MovesWereComplete = true
		// applyMoves may have renamed/reparented entries on whichever
		// side it mirrored a detected move onto, in e.tree as well as
		// in node's own children. RunLevel's contract (pass.go) assumes
		// any detected move already reads as a rename in place, so the
		// cloud snapshot taken above must be refreshed before resolving
		// triplets from it.
		cloudChildren = e.tree.Children(e.cloudHandleOf(node))
	}

	if e.cb != nil {
		e.cb.SyncUpdateScanning(e.cfg, true)
	}
	result := RunLevel(node, cloudChildren, fsChildren, e.cfg.Type, e.family, e.excl, gate)
	if e.cb != nil {
		e.cb.SyncUpdateScanning(e.cfg, false)
	}

	hasConflict := false
	for _, d := range result.Decisions {
		if isUnresolved(d.Action) {
			hasConflict = true
		}
		if d.Action == ActionBackupModified && e.onBackupModified != nil {
			e.onBackupModified()
		}
		if !mutationOccurred(d.Action) {
			continue
		}
		if applyErr := e.applyDecision(ctx, node, d); applyErr != nil {
			slog.Warn("apply decision failed", "sync", e.cfg.Name, "path", node.Path(), "name", d.Name, "action", int(d.Action), "error", applyErr)
			if err == nil {
				err = applyErr
			}
		}
	}
	if e.cb != nil {
		e.cb.SyncUpdateConflicts(e.cfg, hasConflict)
	}

	for k, v := range result.Reasons {
		reasons[k] = v
	}
	progress = result.Progress

	for _, name := range result.RecurseNames {
		child := node.ChildrenFold[name]
		if child == nil {
			continue
		}
		cp, cr, cerr := e.visitSubtree(ctx, child)
		progress = progress || cp
		for k, v := range cr {
			reasons[k] = v
		}
		if cerr != nil && err == nil {
			err = cerr
		}
	}

	if e.cb != nil {
		e.cb.SyncUpdateTreeState(e.cfg, node.Path(), node.Tree)
	}
	return progress, reasons, err
}

// scanDir submits a scan through this sync's scansvc.Service and
// correlates the matching Result by cookie, stashing any results for
// other in-flight requests that arrive first on the shared channel —
// the same correlation discipline waitTransfer applies to
// collab.Transfer.Completions().
func (e *Engine) scanDir(ctx context.Context, absPath string) ([]model.FsNode, error) {
	h := e.scan.Submit(absPath, 0)
	defer h.Release()
	cookie := h.Cookie()

	e.mu.Lock()
	if res, ok := e.scanResults[cookie]; ok {
		delete(e.scanResults, cookie)
		e.mu.Unlock()
		return res.Children, res.Err
	}
	e.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-e.scan.Results():
			if res.Cookie == cookie {
				return res.Children, res.Err
			}
			e.mu.Lock()
			e.scanResults[res.Cookie] = res
			e.mu.Unlock()
		}
	}
}

func (e *Engine) waitTransfer(ctx context.Context, handle collab.TransferHandle) error {
	e.mu.Lock()
	if res, ok := e.xferResults[handle]; ok {
		delete(e.xferResults, handle)
		e.mu.Unlock()
		return res.Err
	}
	e.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-e.transfer.Completions():
			if res.Handle == handle {
				return res.Err
			}
			e.mu.Lock()
			e.xferResults[res.Handle] = res
			e.mu.Unlock()
		}
	}
}

func (e *Engine) uploadFile(ctx context.Context, absPath string, parent model.Handle, name string) error {
	handle, err := e.transfer.Upload(ctx, absPath, parent, name)
	if err != nil {
		return err
	}
	return e.waitTransfer(ctx, handle)
}

func (e *Engine) downloadFile(ctx context.Context, absPath string, cloudHandle model.Handle) error {
	handle, err := e.transfer.Download(ctx, cloudHandle, absPath)
	if err != nil {
		return err
	}
	return e.waitTransfer(ctx, handle)
}

func (e *Engine) computeFingerprint(absPath string) (*model.Fingerprint, error) {
	stat, err := e.fs.Stat(absPath)
	if err != nil {
		return nil, err
	}
	f, err := e.fs.Open(absPath, fscap.OpenRead, stat)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fingerprint.Compute(f, stat.Size, stat.ModTime)
}

func (e *Engine) absPath(relPath string) string {
	if relPath == "" {
		return e.localRoot
	}
	return filepath.Join(e.localRoot, filepath.FromSlash(relPath))
}

// cloudHandleOf returns the cloud handle n's children should be looked
// up under: n's own CloudHandle, or the sync's configured remote root
// handle when n is the sync root itself (the root SyncNode has no
// parent, so its own CloudHandle field is never populated).
func (e *Engine) cloudHandleOf(n *model.SyncNode) model.Handle {
	if n == nil || n.ParentNode() == nil {
		return e.cfg.RemoteHandle
	}
	return n.CloudHandle
}

func (e *Engine) findByCloudHandle(h model.Handle) *model.SyncNode {
	if h == e.cfg.RemoteHandle {
		return e.root
	}
	var found *model.SyncNode
	var walk func(n *model.SyncNode)
	walk = func(n *model.SyncNode) {
		for _, c := range n.Children {
			if found != nil {
				return
			}
			if c.CloudHandle == h {
				found = c
				return
			}
			walk(c)
		}
	}
	walk(e.root)
	return found
}

func (e *Engine) fsIDIndex() map[string]*model.SyncNode {
	out := make(map[string]*model.SyncNode)
	var walk func(n *model.SyncNode)
	walk = func(n *model.SyncNode) {
		for _, c := range n.Children {
			if c.FsID != "" {
				out[c.FsID] = c
			}
			walk(c)
		}
	}
	walk(e.root)
	return out
}

func (e *Engine) fingerprintIndex() []*model.SyncNode {
	var out []*model.SyncNode
	var walk func(n *model.SyncNode)
	walk = func(n *model.SyncNode) {
		for _, c := range n.Children {
			if c.Fingerprint != nil {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e.root)
	return out
}

// applyMoves runs both move-detection passes for node's level, applying
// any matches found directly to the in-memory tree (and staging the
// resulting mutation in the node cache) before RunLevel ever sees the
// now-unmatched entries as fresh creates.
func (e *Engine) applyMoves(ctx context.Context, node *model.SyncNode, fsChildren []model.FsNode) {
	newCloudParent := e.cloudHandleOf(node)

	var newFs []model.FsNode
	for _, f := range fsChildren {
		if _, matched := node.ChildrenFold[fscap.CaseFold(e.family, f.Name)]; !matched {
			newFs = append(newFs, f)
		}
	}
	for _, m := range DetectLocalMoves(newFs, e.fsIDIndex(), e.family) {
		e.applyLocalMove(ctx, node, m)
	}

	// BACKUP collapses to upsync-only (spec §4.3.3): the cloud side of a
	// backup subtree should never legitimately change on its own, and
	// any change it does see must surface through ActionBackupModified
	// rather than be quietly absorbed here as a move.
	if e.cfg.Type == model.SyncBackup {
		return
	}

	// Fetch fresh from e.tree rather than from a snapshot taken before
	// the local-move pass above ran: applyLocalMove may have just
	// mirrored a rename/reparent straight into e.tree, and running
	// cloud-move detection against the pre-move state would re-match
	// that same entry under its old name and mistake the local move for
	// an independent cloud move, undoing it.
	var newCloud []model.CloudNode
	for _, c := range e.tree.Children(newCloudParent) {
		if _, matched := node.ChildrenFold[fscap.CaseFold(e.family, c.Name)]; !matched {
			newCloud = append(newCloud, c)
		}
	}
	unchangedParent := func(s *model.SyncNode) bool {
		return e.cloudHandleOf(s.ParentNode()) == newCloudParent
	}
	for _, m := range DetectCloudMoves(newCloud, e.fingerprintIndex(), unchangedParent) {
		e.applyCloudMove(node, m)
	}
}

// applyLocalMove handles a move DetectLocalMoves found by diffing the
// local filesystem scan: the move already happened on disk, so the
// only real I/O left is propagating it to the paired cloud node. The
// in-memory tree and cache are updated to match either way.
func (e *Engine) applyLocalMove(ctx context.Context, newParent *model.SyncNode, m MoveMatch) {
	oldNode := m.OldNode
	oldParent := oldNode.ParentNode()
	if oldParent == nil {
		return
	}
	if oldNode.Paired() {
		newCloudParent := e.cloudHandleOf(newParent)
		if e.cloudHandleOf(oldParent) != newCloudParent {
			if err := e.cloud.Move(ctx, oldNode.CloudHandle, newCloudParent); err != nil {
				slog.Warn("apply local move to cloud", "name", oldNode.Name, "error", err)
				return
			}
		}
		cloudName := fscap.NormalizeForCloud(m.NewName)
		if oldNode.Name != m.NewName {
			if err := e.cloud.Rename(ctx, oldNode.CloudHandle, cloudName); err != nil {
				slog.Warn("apply local rename to cloud", "name", oldNode.Name, "error", err)
			}
		}

		// Mirror the move/rename into e.tree by hand, same reasoning as
		// doUpsync: the mutation above went straight through e.cloud,
		// not through a Changes() notification e.tree would otherwise
		// pick up on its own.
		cloudNode, _ := e.tree.Node(oldNode.CloudHandle)
		cloudNode.Handle = oldNode.CloudHandle
		cloudNode.Parent = newCloudParent
		cloudNode.Name = cloudName
		e.tree.Apply(model.CloudChange{Node: cloudNode})
	}

	oldParent.Detach(oldNode, fscap.CaseFold(e.family, oldNode.Name))
	oldNode.Name = m.NewName
	oldNode.ShortName = m.NewName
	newParent.Attach(oldNode, fscap.CaseFold(e.family, m.NewName))
	e.cache.QueueUpdate(oldNode)
}

// applyCloudMove handles a move DetectCloudMoves found by diffing the
// cloud-side tree: the move already happened in the cloud, so the
// only real I/O left is replaying it onto the local filesystem.
func (e *Engine) applyCloudMove(newParent *model.SyncNode, m MoveMatch) {
	oldNode := m.OldNode
	oldParent := oldNode.ParentNode()
	if oldParent == nil {
		return
	}
	oldAbsPath := e.absPath(oldNode.Path())
	newAbsParentDir := e.absPath(newParent.Path())
	localName := fscap.Escape(e.family, m.NewName)

	if oldParent != newParent {
		if err := e.fs.Move(oldAbsPath, newAbsParentDir); err != nil {
			slog.Warn("apply cloud move to fs", "path", oldAbsPath, "error", err)
			return
		}
	}
	movedPath := filepath.Join(newAbsParentDir, filepath.Base(oldAbsPath))
	if filepath.Base(oldAbsPath) != localName {
		if err := e.fs.Rename(movedPath, localName); err != nil {
			slog.Warn("apply cloud rename to fs", "path", movedPath, "error", err)
		}
	}

	oldParent.Detach(oldNode, fscap.CaseFold(e.family, oldNode.Name))
	oldNode.Name = localName
	oldNode.ShortName = localName
	newParent.Attach(oldNode, fscap.CaseFold(e.family, localName))
	e.cache.QueueUpdate(oldNode)
}

// applyDecision dispatches the one Action mutationOccurred recognizes
// as requiring real I/O. Every other Action (ActionNone, ActionNoOp,
// the unresolved conflict actions) is handled entirely by RunLevel's
// Progress/Reasons bookkeeping and never reaches here.
func (e *Engine) applyDecision(ctx context.Context, parent *model.SyncNode, d Decision) error {
	t := d.Triplet
	switch d.Action {
	case ActionDeleteSyncNode:
		return e.doDeleteSyncNode(parent, t)
	case ActionDownsync:
		return e.doDownsync(ctx, parent, t)
	case ActionUpsync:
		return e.doUpsync(ctx, parent, t)
	case ActionDeleteFromCloud:
		return e.doDeleteFromCloud(ctx, t)
	case ActionRecreateLocal:
		return e.doRecreateLocal(ctx, t)
	case ActionLocalDelete:
		return e.doLocalDelete(parent, t)
	case ActionAdopt:
		return e.doAdopt(parent, t)
	case ActionPickWinnerUpsync:
		return e.doPickWinnerUpsync(ctx, t)
	case ActionPickWinnerDownsync:
		return e.doPickWinnerDownsync(ctx, t)
	default:
		return nil
	}
}

func (e *Engine) doDeleteSyncNode(parent *model.SyncNode, t Triplet) error {
	s := t.Sync
	if s == nil {
		return nil
	}
	parent.Detach(s, t.Name)
	e.cache.QueueDelete(s.DBID)
	return nil
}

// doDownsync materializes a cloud entry locally: a folder is created
// empty, a file is downloaded through the Transfer collaborator. It
// covers both the fresh-create case (t.Sync == nil) and the
// content-update case that shares the same Action when cloud changed
// and fs didn't.
func (e *Engine) doDownsync(ctx context.Context, parent *model.SyncNode, t Triplet) error {
	c := t.Cloud
	if c == nil {
		return nil
	}
	s := t.Sync
	isNew := s == nil
	if isNew {
		typ := model.NodeTypeFile
		if c.Kind == model.CloudKindFolder || c.Kind == model.CloudKindRoot {
			typ = model.NodeTypeFolder
		}
		s = model.NewSyncNode(fscap.Escape(e.family, c.Name), typ)
		s.CloudHandle = c.Handle
		parent.Attach(s, t.Name)
	}

	absPath := e.absPath(s.Path())
	if s.Type == model.NodeTypeFolder {
		if err := e.fs.Mkdir(absPath); err != nil {
			return fmt.Errorf("create local folder %s: %w", absPath, err)
		}
	} else {
		if err := e.downloadFile(ctx, absPath, c.Handle); err != nil {
			return fmt.Errorf("download %s: %w", absPath, err)
		}
		s.Fingerprint = c.Fingerprint
	}
	s.LastSeenModTime = c.ModTime
	s.CreatedOnDisk = true

	if isNew {
		e.cache.QueueInsert(s)
	} else {
		e.cache.QueueUpdate(s)
	}
	return nil
}

// doUpsync is doDownsync's mirror: create or update the cloud side from
// a local entry.
func (e *Engine) doUpsync(ctx context.Context, parent *model.SyncNode, t Triplet) error {
	f := t.Fs
	if f == nil {
		return nil
	}
	s := t.Sync
	isNew := s == nil
	if isNew {
		s = model.NewSyncNode(f.Name, f.Type)
		s.FsID = f.FsID
		parent.Attach(s, t.Name)
	}

	parentHandle := e.cloudHandleOf(parent)
	absPath := e.absPath(s.Path())

	cloudKind := model.CloudKindFile
	if f.Type == model.NodeTypeFolder {
		cloudKind = model.CloudKindFolder
		handle, err := e.cloud.PutNodes(ctx, parentHandle, fscap.NormalizeForCloud(f.Name), nil)
		if err != nil {
			return fmt.Errorf("create cloud folder %s: %w", f.Name, err)
		}
		s.CloudHandle = handle
	} else {
		fp, err := e.computeFingerprint(absPath)
		if err != nil {
			return fmt.Errorf("fingerprint %s: %w", absPath, err)
		}
		if err := e.uploadFile(ctx, absPath, parentHandle, fscap.NormalizeForCloud(f.Name)); err != nil {
			return fmt.Errorf("upload %s: %w", absPath, err)
		}
		if s.Paired() {
			if err := e.cloud.SetAttr(ctx, s.CloudHandle, fp); err != nil {
				return fmt.Errorf("set attr %s: %w", absPath, err)
			}
		} else {
			handle, err := e.cloud.PutNodes(ctx, parentHandle, fscap.NormalizeForCloud(f.Name), fp)
			if err != nil {
				return fmt.Errorf("register cloud node %s: %w", f.Name, err)
			}
			s.CloudHandle = handle
		}
		s.Fingerprint = fp
	}
	s.LastSeenModTime = f.ModTime
	s.CreatedOnDisk = true

	// The cloud mutation above landed directly through e.cloud, not
	// through the Changes() stream e.tree otherwise mirrors itself
	// from — apply it to e.tree by hand so the next RunLevel call in
	// this pass, and every pass after, sees this node as paired rather
	// than re-deriving "no matching cloud entry" and undoing the upsync.
	e.tree.Apply(model.CloudChange{Node: model.CloudNode{
		Handle:      s.CloudHandle,
		Parent:      parentHandle,
		Kind:        cloudKind,
		Name:        fscap.NormalizeForCloud(s.Name),
		Fingerprint: s.Fingerprint,
		ModTime:     s.LastSeenModTime,
	}})

	if isNew {
		e.cache.QueueInsert(s)
	} else {
		e.cache.QueueUpdate(s)
	}
	return nil
}

func (e *Engine) doDeleteFromCloud(ctx context.Context, t Triplet) error {
	s := t.Sync
	if s == nil || !s.Paired() {
		return nil
	}
	handle := s.CloudHandle
	if err := e.cloud.Delete(ctx, handle); err != nil {
		return fmt.Errorf("delete cloud node: %w", err)
	}
	e.tree.Apply(model.CloudChange{Node: model.CloudNode{Handle: handle}, Removed: true})
	s.CloudHandle = model.Handle{}
	e.cache.QueueUpdate(s)
	return nil
}

// doRecreateLocal rematerializes a vanished local entry from the cloud
// side, which is known to have changed more recently than the local
// copy was last seen.
func (e *Engine) doRecreateLocal(ctx context.Context, t Triplet) error {
	c, s := t.Cloud, t.Sync
	if c == nil || s == nil {
		return nil
	}
	absPath := e.absPath(s.Path())
	if s.Type == model.NodeTypeFolder {
		if err := e.fs.Mkdir(absPath); err != nil {
			return fmt.Errorf("recreate local folder %s: %w", absPath, err)
		}
	} else {
		if err := e.downloadFile(ctx, absPath, c.Handle); err != nil {
			return fmt.Errorf("recreate local file %s: %w", absPath, err)
		}
		s.Fingerprint = c.Fingerprint
	}
	s.LastSeenModTime = c.ModTime
	e.cache.QueueUpdate(s)
	return nil
}

func (e *Engine) doLocalDelete(parent *model.SyncNode, t Triplet) error {
	s := t.Sync
	if s == nil {
		return nil
	}
	absPath := e.absPath(s.Path())
	if _, err := e.fs.DeleteToDebris(absPath); err != nil {
		return fmt.Errorf("delete to debris %s: %w", absPath, err)
	}
	parent.Detach(s, t.Name)
	e.cache.QueueDelete(s.DBID)
	return nil
}

func (e *Engine) doAdopt(parent *model.SyncNode, t Triplet) error {
	c, f := t.Cloud, t.Fs
	if c == nil || f == nil {
		return nil
	}
	s := model.NewSyncNode(f.Name, f.Type)
	s.CloudHandle = c.Handle
	s.FsID = f.FsID
	s.Fingerprint = c.Fingerprint
	s.LastSeenModTime = c.ModTime
	s.CreatedOnDisk = true
	parent.Attach(s, t.Name)
	e.cache.QueueInsert(s)
	return nil
}

// doPickWinnerUpsync is the both-changed tie-break's fs-wins branch:
// upload the local content over the cloud copy. The cloud-side loser
// is overwritten in place rather than versioned to cloud debris —
// collab.CloudClient exposes no "keep a prior version" primitive, only
// Move/Rename/Delete/PutNodes/SetAttr, so there is nowhere to put a
// cloud-side debris copy (see DESIGN.md).
func (e *Engine) doPickWinnerUpsync(ctx context.Context, t Triplet) error {
	s, f := t.Sync, t.Fs
	if s == nil || f == nil {
		return nil
	}
	absPath := e.absPath(s.Path())
	fp, err := e.computeFingerprint(absPath)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", absPath, err)
	}
	parentHandle := e.cloudHandleOf(s.ParentNode())
	if err := e.uploadFile(ctx, absPath, parentHandle, fscap.NormalizeForCloud(f.Name)); err != nil {
		return fmt.Errorf("upload %s: %w", absPath, err)
	}
	if err := e.cloud.SetAttr(ctx, s.CloudHandle, fp); err != nil {
		return fmt.Errorf("set attr %s: %w", absPath, err)
	}
	s.Fingerprint = fp
	s.LastSeenModTime = f.ModTime
	e.cache.QueueUpdate(s)
	return nil
}

// doPickWinnerDownsync is the both-changed tie-break's cloud-wins
// branch: the local loser is moved to debris (a real versioned copy,
// since fscap.Capability.DeleteToDebris exists for exactly this) before
// the cloud winner is downloaded over it.
func (e *Engine) doPickWinnerDownsync(ctx context.Context, t Triplet) error {
	s, c := t.Sync, t.Cloud
	if s == nil || c == nil {
		return nil
	}
	absPath := e.absPath(s.Path())
	if _, err := e.fs.DeleteToDebris(absPath); err != nil {
		return fmt.Errorf("debris local loser %s: %w", absPath, err)
	}
	if err := e.downloadFile(ctx, absPath, c.Handle); err != nil {
		return fmt.Errorf("download winner %s: %w", absPath, err)
	}
	s.Fingerprint = c.Fingerprint
	s.LastSeenModTime = c.ModTime
	e.cache.QueueUpdate(s)
	return nil
}
