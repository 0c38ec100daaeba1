// Package collab defines the contracts through which the reconciliation
// engine consumes external collaborators it does not implement: the
// cloud RPC client, the transfer engine, cryptographic primitives, the
// cooperative waiter/notify primitive, and application callbacks. See
// spec.md §6. Nothing in this package talks to a real network or disk;
// concrete implementations live outside this module (or, for tests and
// the demo CLI, in collab/fake).
package collab

import (
	"context"
	"time"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// CloudClient is the minimal surface the reconciler needs from the
// cloud side: mutate the cloud tree, and receive change notifications.
// Authentication, session management, and request retry policy belong
// to the concrete implementation, not to this interface.
type CloudClient interface {
	Move(ctx context.Context, handle, newParent model.Handle) error
	Rename(ctx context.Context, handle model.Handle, newName string) error
	Delete(ctx context.Context, handle model.Handle) error
	PutNodes(ctx context.Context, parent model.Handle, name string, fp *model.Fingerprint) (model.Handle, error)
	SetAttr(ctx context.Context, handle model.Handle, fp *model.Fingerprint) error

	// Changes delivers cloud-side mutations as they are observed.
	// Closed when the client is shut down.
	Changes() <-chan model.CloudChange
}

// TransferHandle identifies one in-flight upload or download.
type TransferHandle string

// TransferResult is delivered on a Transfer's completion channel.
type TransferResult struct {
	Handle TransferHandle
	Err    error
}

// Transfer is the upload/download engine. The reconciler requests
// transfers and observes completion; it never performs I/O itself.
type Transfer interface {
	Upload(ctx context.Context, localPath string, parent model.Handle, name string) (TransferHandle, error)
	Download(ctx context.Context, handle model.Handle, localPath string) (TransferHandle, error)
	Cancel(handle TransferHandle)
	Completions() <-chan TransferResult
}

// Crypto is the black-box cryptographic capability spec.md §1/§9 calls
// for: a CBC-mode symmetric cipher, HMAC-SHA256, and a PRNG. The core
// depends only on this interface; internal/reconcile/configstore's
// default implementation (configstore.StdCrypto) happens to use the Go
// standard library, but any conforming implementation may be injected.
type Crypto interface {
	// Encrypt CBC-encrypts plaintext under key using iv (len(iv)==16).
	Encrypt(key, iv, plaintext []byte) ([]byte, error)
	// Decrypt is the inverse of Encrypt.
	Decrypt(key, iv, ciphertext []byte) ([]byte, error)
	// HMAC returns the HMAC-SHA256 of data under key (32 bytes).
	HMAC(key, data []byte) []byte
	// RandomBytes fills and returns n cryptographically random bytes.
	RandomBytes(n int) ([]byte, error)
}

// Waiter is the single cooperative scheduling primitive the sync
// thread suspends on (spec.md §5). Notify wakes a pending WaitUntil
// early; WaitUntil never blocks past deadline.
type Waiter interface {
	WaitUntil(ctx context.Context, deadline time.Time)
	Notify()
}

// AppCallbacks are the five notification points the owning application
// observes (spec.md §6). SyncUpdateStateConfig goes through
// syncfsm.Machine.NotifyIfChanged for a sync with a live instance,
// which drops a repeat of the last reported (error, enabled) pair. The
// other four are not de-duplicated: reconciler.Engine calls
// SyncUpdateStalled once per pass, and SyncUpdateScanning,
// SyncUpdateConflicts and SyncUpdateTreeState for every directory level
// it visits.
type AppCallbacks interface {
	SyncUpdateStateConfig(cfg *model.SyncConfig, err model.SyncError, enabled bool)
	SyncUpdateTreeState(cfg *model.SyncConfig, path string, state model.TreeState)
	SyncUpdateConflicts(cfg *model.SyncConfig, hasConflicts bool)
	SyncUpdateStalled(cfg *model.SyncConfig, stalled bool, reasons map[string]string)
	SyncUpdateScanning(cfg *model.SyncConfig, scanning bool)
}
