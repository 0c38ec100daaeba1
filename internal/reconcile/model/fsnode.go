package model

import "time"

// FsNode is one entry in an ephemeral directory-scan snapshot produced
// by scansvc. It carries just enough to compute a Fingerprint and drive
// case-fold matching against SyncNode/CloudNode children; it is never
// persisted.
type FsNode struct {
	Name      string
	ShortName string
	Type      NodeType
	Size      int64
	ModTime   time.Time
	FsID      string
}

