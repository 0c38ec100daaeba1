// Package reconciler is the matching engine: for a target directory,
// it forms (cloud, sync, fs) triplets by name, dispatches each to the
// resolution rule set, detects moves/renames before that dispatch,
// tracks stall state across passes, and gates mutation behind the
// scan-completeness flags spec §4.3 requires. It is the direct
// generalization of the teacher's sync_engine.go reconcile()/
// executeReconcileOperations() two-phase shape — compute a batched
// decision set, then execute it — from a flat local/remote map diff
// to a recursive tree with full move detection and a name-conflict
// clash path neither of sync_engine.go's two sides needed.
package reconciler

import "github.com/foldersync/syncengine/internal/reconcile/model"

// Triplet groups whatever cloud, cache, and filesystem entries share
// one case-folded name within a single directory level.
type Triplet struct {
	Name string

	Cloud *model.CloudNode
	Sync  *model.SyncNode
	Fs    *model.FsNode

	// CloudClashingNames/FsClashingNames hold the literal names of any
	// additional entries that fold to the same name as this triplet's
	// primary entry — e.g. two cloud files "A" and "a" on a
	// case-folding local filesystem. A non-empty clash list forces
	// this triplet into a name conflict (spec §4.3.2).
	CloudClashingNames []string
	FsClashingNames    []string
}

// HasClash reports whether this triplet has more than one candidate
// on the cloud or fs side for the same folded name.
func (t Triplet) HasClash() bool {
	return len(t.CloudClashingNames) > 0 || len(t.FsClashingNames) > 0
}

// FormTriplets groups cloudChildren, the SyncNode's existing children,
// and fsChildren by caseFold(name), attaching clash overflow rather
// than silently picking one. caseFold must apply the same folding rule
// the containing filesystem family uses (fscap.CaseFold).
func FormTriplets(cloudChildren []model.CloudNode, syncNode *model.SyncNode, fsChildren []model.FsNode, caseFold func(string) string) []Triplet {
	type bucket struct {
		foldName   string
		cloud      []*model.CloudNode
		sync       *model.SyncNode
		fs         []*model.FsNode
		primaryCld string // literal name of the first cloud entry seen
		primaryFs  string // literal name of the first fs entry seen
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0, len(cloudChildren)+len(fsChildren)+len(syncNode.Children))

	get := func(fold string) *bucket {
		b, ok := buckets[fold]
		if !ok {
			b = &bucket{foldName: fold}
			buckets[fold] = b
			order = append(order, fold)
		}
		return b
	}

	for i := range cloudChildren {
		c := &cloudChildren[i]
		b := get(caseFold(c.Name))
		b.cloud = append(b.cloud, c)
	}
	for foldName, n := range syncNode.ChildrenFold {
		b := get(foldName)
		b.sync = n
	}
	for i := range fsChildren {
		f := &fsChildren[i]
		b := get(caseFold(f.Name))
		b.fs = append(b.fs, f)
	}

	triplets := make([]Triplet, 0, len(order))
	for _, fold := range order {
		b := buckets[fold]
		t := Triplet{Name: fold, Sync: b.sync}

		if len(b.cloud) > 0 {
			t.Cloud = b.cloud[0]
			for _, extra := range b.cloud[1:] {
				t.CloudClashingNames = append(t.CloudClashingNames, extra.Name)
			}
		}
		if len(b.fs) > 0 {
			t.Fs = b.fs[0]
			for _, extra := range b.fs[1:] {
				t.FsClashingNames = append(t.FsClashingNames, extra.Name)
			}
		}
		triplets = append(triplets, t)
	}
	return triplets
}
