package main

import (
	"encoding/hex"
	"fmt"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func parseBackupID(s string) (model.BackupID, error) {
	var id model.BackupID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid backup id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("backup id %q must be %d bytes (%d hex chars)", s, len(id), len(id)*2)
	}
	copy(id[:], b)
	return id, nil
}
