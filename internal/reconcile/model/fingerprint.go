package model

import "time"

// Fingerprint is the (size, mtime-to-the-second, sparse CRC) tuple used
// to detect content equality without a byte-for-byte comparison. See
// internal/reconcile/fingerprint for how it's computed and compared.
type Fingerprint struct {
	Size    int64
	ModTime time.Time // truncated to the second
	CRC     uint32
}

// Equal compares two fingerprints tolerating one-second mtime
// quantization, per spec §4.3.5.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.Size != other.Size || f.CRC != other.CRC {
		return false
	}
	delta := f.ModTime.Sub(other.ModTime)
	if delta < 0 {
		delta = -delta
	}
	return delta <= time.Second
}
