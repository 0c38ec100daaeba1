package reconciler

import (
	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// MoveKind distinguishes which side a detected move originated on.
type MoveKind int

const (
	LocalMove MoveKind = iota
	CloudMove
)

// MoveMatch is a detected move/rename: OldNode is the SyncNode that
// used to represent the item at its old location; NewName is its name
// there, and the caller supplies the new parent.
type MoveMatch struct {
	Kind     MoveKind
	OldNode  *model.SyncNode
	NewName  string
	NewPath  string // informational, for logging/tests
}

// DetectLocalMoves runs the local-move-detection pass (spec §4.3.4):
// a newly observed FsNode whose filesystem ID matches an existing
// SyncNode elsewhere in the sync is a move, not a delete+create. This
// must only run once scanning is known complete (gate
// scanningWasComplete) — a partial scan can make a genuinely new file
// look like an orphaned SyncNode's move target.
//
// candidates maps every known SyncNode in the sync by its FsID (built
// by the caller from the whole in-memory tree, not just one
// directory's children). newFs lists freshly observed filesystem
// entries that have no matching SyncNode by name in their own
// directory (i.e. candidates for "this might be something that moved
// in from elsewhere").
func DetectLocalMoves(newFs []model.FsNode, candidates map[string]*model.SyncNode, family fscap.Family) []MoveMatch {
	var matches []MoveMatch
	claimed := make(map[string]bool) // FsID already matched this pass

	for _, fs := range newFs {
		if fs.FsID == "" || claimed[fs.FsID] {
			continue
		}
		node, ok := candidates[fs.FsID]
		if !ok {
			continue
		}
		claimed[fs.FsID] = true
		matches = append(matches, MoveMatch{
			Kind:    LocalMove,
			OldNode: node,
			NewName: fs.Name,
			NewPath: fs.Name,
		})
	}
	return matches
}

// DetectCloudMoves runs the cloud-move-detection pass: a newly
// observed CloudNode whose content fingerprint matches an existing
// paired SyncNode elsewhere is a move, not a re-download.
//
// candidates lists every paired SyncNode in the sync with a non-nil
// Fingerprint (built by the caller, same scope caveat as
// DetectLocalMoves). When more than one candidate's fingerprint
// matches a single new cloud node, the tie-break in spec §4.3.4
// applies: prefer the candidate whose parent handle is unchanged vs.
// the new node's cloud parent, then the one whose name already equals
// the new node's name, else abort detection for that node (favor a
// redundant re-download over a wrong rename).
func DetectCloudMoves(newCloud []model.CloudNode, candidates []*model.SyncNode, unchangedParent func(*model.SyncNode) bool) []MoveMatch {
	var matches []MoveMatch
	claimed := make(map[*model.SyncNode]bool)

	for _, cn := range newCloud {
		if cn.Fingerprint == nil {
			continue
		}

		var tied []*model.SyncNode
		for _, cand := range candidates {
			if claimed[cand] || cand.Fingerprint == nil {
				continue
			}
			if cand.Fingerprint.Equal(cn.Fingerprint) {
				tied = append(tied, cand)
			}
		}

		winner := pickMoveTieBreak(tied, cn, unchangedParent)
		if winner == nil {
			continue
		}
		claimed[winner] = true
		matches = append(matches, MoveMatch{
			Kind:    CloudMove,
			OldNode: winner,
			NewName: cn.Name,
			NewPath: cn.Name,
		})
	}
	return matches
}

// pickMoveTieBreak applies spec §4.3.4's tie-break order to a set of
// candidates that all fingerprint-match a new cloud node. Returns nil
// when no single candidate can be preferred (abort detection).
func pickMoveTieBreak(tied []*model.SyncNode, cn model.CloudNode, unchangedParent func(*model.SyncNode) bool) *model.SyncNode {
	if len(tied) == 0 {
		return nil
	}
	if len(tied) == 1 {
		return tied[0]
	}

	if unchangedParent != nil {
		var parentMatches []*model.SyncNode
		for _, cand := range tied {
			if unchangedParent(cand) {
				parentMatches = append(parentMatches, cand)
			}
		}
		if len(parentMatches) == 1 {
			return parentMatches[0]
		}
		if len(parentMatches) > 1 {
			tied = parentMatches
		}
	}

	var nameMatches []*model.SyncNode
	for _, cand := range tied {
		if fscap.NormalizeForCloud(cand.Name) == cn.Name {
			nameMatches = append(nameMatches, cand)
		}
	}
	if len(nameMatches) == 1 {
		return nameMatches[0]
	}

	return nil // still ambiguous: safer to re-upload/re-download than mis-rename
}
