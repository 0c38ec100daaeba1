package reconciler

// PhaseGate tracks the three progress flags spec §4.3.7 requires
// within one pass. Violating the order they're meant to be checked in
// should produce a deferred revisit, never an incorrect mutation —
// callers are expected to check the relevant gate before each step
// rather than relying on PhaseGate to enforce it for them.
type PhaseGate struct {
	// ScanTargetReachable: the target directory could be opened/
	// stat'd this pass; without it, no triplet in this subtree may be
	// considered at all.
	ScanTargetReachable bool
	// ScanningWasComplete: every child in this subtree was
	// successfully listed; without it, move/rename detection must be
	// deferred (a partial scan can make a real file look orphaned).
	ScanningWasComplete bool
	// MovesWereComplete: the move-detection passes ran to completion
	// for this subtree; without it, deletes/uploads/downloads must be
	// deferred rather than issued against what might be a move's
	// source or destination.
	MovesWereComplete bool
}

// MayConsiderTriplets reports whether this pass may even form triplets
// for the target subtree.
func (g PhaseGate) MayConsiderTriplets() bool {
	return g.ScanTargetReachable
}

// MayDetectMoves reports whether move/rename detection may run.
func (g PhaseGate) MayDetectMoves() bool {
	return g.ScanTargetReachable && g.ScanningWasComplete
}

// MayMutate reports whether deletes/uploads/downloads may be issued.
func (g PhaseGate) MayMutate() bool {
	return g.ScanTargetReachable && g.ScanningWasComplete && g.MovesWereComplete
}
