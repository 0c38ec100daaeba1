package reconciler

import (
	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// LevelResult is the outcome of resolving one directory level. Names
// in RecurseNames are folder entries whose resolution did not suppress
// recursion (spec §4.3.1 step 4); the caller fetches that subtree's
// children and calls RunLevel again for each.
type LevelResult struct {
	Decisions    []Decision
	RecurseNames []string
	Progress     bool
	Reasons      map[string]string // triplet name -> why it's unresolved, for stall reporting
}

// RunLevel forms triplets for one directory level and resolves each,
// honoring gate. Move/rename detection is a whole-tree operation
// (moves.go's DetectLocalMoves/DetectCloudMoves) and is expected to
// have already been applied by the caller — by the time cloudChildren
// and fsChildren reach RunLevel, anything identified as a move should
// already be reflected as a rename in place rather than a delete+create
// pair, so RunLevel itself only ever implements the steady-state table.
func RunLevel(syncNode *model.SyncNode, cloudChildren []model.CloudNode, fsChildren []model.FsNode, syncType model.SyncType, family fscap.Family, excl *Exclusions, gate PhaseGate) LevelResult {
	result := LevelResult{Reasons: make(map[string]string)}

	if !gate.MayConsiderTriplets() {
		result.Reasons[syncNode.Path()] = "scan target unreachable"
		return result
	}

	basePath := syncNode.Path()
	cloudChildren = filterCloud(cloudChildren, basePath, excl)
	fsChildren = filterFs(fsChildren, basePath, excl)

	triplets := FormTriplets(cloudChildren, syncNode, fsChildren, func(name string) string {
		return fscap.CaseFold(family, name)
	})

	for _, t := range triplets {
		decision := Resolve(t, syncType, family)

		if mutationRequired(decision.Action) && !gate.MayMutate() {
			decision = decide(ActionNone, "deferred: moves not yet complete for this pass", decision.Suppress)
			result.Reasons[t.Name] = "deferred pending move-detection completion"
		} else if isUnresolved(decision.Action) {
			result.Reasons[t.Name] = decision.Reason
		}

		if mutationOccurred(decision.Action) {
			result.Progress = true
		}

		if !decision.Suppress && isFolder(t) {
			result.RecurseNames = append(result.RecurseNames, t.Name)
		}

		result.Decisions = append(result.Decisions, decision)
	}

	return result
}

func filterCloud(nodes []model.CloudNode, basePath string, excl *Exclusions) []model.CloudNode {
	if excl == nil {
		return nodes
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		if !excl.Excluded(joinPath(basePath, n.Name)) {
			out = append(out, n)
		}
	}
	return out
}

func filterFs(nodes []model.FsNode, basePath string, excl *Exclusions) []model.FsNode {
	if excl == nil {
		return nodes
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		if !excl.Excluded(joinPath(basePath, n.Name)) {
			out = append(out, n)
		}
	}
	return out
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

func isFolder(t Triplet) bool {
	switch {
	case t.Sync != nil:
		return t.Sync.Type == model.NodeTypeFolder
	case t.Cloud != nil:
		return t.Cloud.Kind == model.CloudKindFolder || t.Cloud.Kind == model.CloudKindRoot
	case t.Fs != nil:
		return t.Fs.Type == model.NodeTypeFolder
	default:
		return false
	}
}

func mutationRequired(a Action) bool {
	switch a {
	case ActionNone, ActionNoOp, ActionNameConflict, ActionConflictUnpaired, ActionConflictLocalWins, ActionBackupModified:
		return false
	default:
		return true
	}
}

func mutationOccurred(a Action) bool {
	switch a {
	case ActionDownsync, ActionUpsync, ActionDeleteFromCloud, ActionRecreateLocal,
		ActionLocalDelete, ActionAdopt, ActionPickWinnerUpsync, ActionPickWinnerDownsync,
		ActionDeleteSyncNode:
		return true
	default:
		return false
	}
}

func isUnresolved(a Action) bool {
	switch a {
	case ActionNameConflict, ActionConflictUnpaired, ActionConflictLocalWins, ActionBackupModified:
		return true
	default:
		return false
	}
}
