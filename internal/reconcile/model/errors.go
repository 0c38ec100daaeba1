package model

// SyncError enumerates the disabling error kinds a Sync can carry
// (spec §7). It is state propagated through syncfsm, not a Go error —
// callers compare it by value, not with errors.Is.
type SyncError int

const (
	NoSyncError SyncError = iota
	ActiveSyncBelowPath
	ActiveSyncAbovePath
	RemoteNodeNotFound
	InitialScanFailed
	LocalFingerprintMismatch
	LocalFilesystemMismatch
	BackupModified
	ForeignTargetOverstorage
	UnsupportedFileSystem
	StorageOverquota
	BackupSourceNotBelowDrive
	FailedWritingCache
)

func (e SyncError) String() string {
	switch e {
	case NoSyncError:
		return "no_sync_error"
	case ActiveSyncBelowPath:
		return "active_sync_below_path"
	case ActiveSyncAbovePath:
		return "active_sync_above_path"
	case RemoteNodeNotFound:
		return "remote_node_not_found"
	case InitialScanFailed:
		return "initial_scan_failed"
	case LocalFingerprintMismatch:
		return "local_fingerprint_mismatch"
	case LocalFilesystemMismatch:
		return "local_filesystem_mismatch"
	case BackupModified:
		return "backup_modified"
	case ForeignTargetOverstorage:
		return "foreign_target_overstorage"
	case UnsupportedFileSystem:
		return "unsupported_file_system"
	case StorageOverquota:
		return "storage_overquota"
	case BackupSourceNotBelowDrive:
		return "backup_source_not_below_drive"
	case FailedWritingCache:
		return "failed_writing_cache"
	default:
		return "unknown_sync_error"
	}
}

// SyncWarning enumerates informational, non-disabling warning kinds.
type SyncWarning int

const (
	NoSyncWarning SyncWarning = iota
	LocalIsFAT
	LocalIsHGFS
)

func (w SyncWarning) String() string {
	switch w {
	case NoSyncWarning:
		return "no_sync_warning"
	case LocalIsFAT:
		return "local_is_fat"
	case LocalIsHGFS:
		return "local_is_hgfs"
	default:
		return "unknown_sync_warning"
	}
}
