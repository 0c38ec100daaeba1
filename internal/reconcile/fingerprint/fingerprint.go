// Package fingerprint computes and compares the compact content
// signature the reconciler uses to decide whether a file's data
// changed without reading the whole file: a (size, mtime, sparse CRC)
// triple, following the sampled-CRC strategy in
// original_source/src/node.cpp's LocalNode fingerprint rather than a
// full-file hash (spec §4.3.5).
package fingerprint

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

const (
	sampleCount = 4
	sampleSize  = 4096
)

// wireLen is the fixed serialized size: 8 (size) + 8 (unix seconds) +
// 4 (crc) bytes.
const wireLen = 8 + 8 + 4

// Compute derives a Fingerprint by sampling up to sampleCount fixed
// offsets of sampleSize bytes each — evenly spread across the file — rather
// than hashing the entire contents, so fingerprinting a large,
// unchanged file stays cheap on every scan pass.
func Compute(r io.ReaderAt, size int64, modTime time.Time) (*model.Fingerprint, error) {
	crc, err := sparseCRC(r, size)
	if err != nil {
		return nil, err
	}
	return &model.Fingerprint{
		Size:    size,
		ModTime: modTime.Truncate(time.Second),
		CRC:     crc,
	}, nil
}

func sparseCRC(r io.ReaderAt, size int64) (uint32, error) {
	if size == 0 {
		return crc32.ChecksumIEEE(nil), nil
	}

	table := crc32.IEEETable
	crc := uint32(0)
	buf := make([]byte, sampleSize)

	for _, off := range sampleOffsets(size) {
		n := sampleSize
		if remaining := size - off; remaining < int64(n) {
			n = int(remaining)
		}
		if n <= 0 {
			continue
		}
		read, err := r.ReadAt(buf[:n], off)
		if err != nil && err != io.EOF {
			return 0, err
		}
		crc = crc32.Update(crc, table, buf[:read])
	}
	return crc, nil
}

// sampleOffsets picks up to sampleCount start offsets spread evenly
// across [0, size), deduplicated for files too small to have distinct
// samples (spec's "fixed offsets" sampling, not a full-file scan).
func sampleOffsets(size int64) []int64 {
	if size <= sampleSize {
		return []int64{0}
	}

	offsets := make([]int64, 0, sampleCount)
	seen := make(map[int64]struct{}, sampleCount)
	step := size / sampleCount
	for i := 0; i < sampleCount; i++ {
		off := int64(i) * step
		if off+sampleSize > size {
			off = size - sampleSize
		}
		if off < 0 {
			off = 0
		}
		if _, dup := seen[off]; dup {
			continue
		}
		seen[off] = struct{}{}
		offsets = append(offsets, off)
	}
	return offsets
}

// Equal reports whether a and b denote the same content, tolerating
// one-second mtime quantization (spec §4.3.5); a nil fingerprint never
// equals a non-nil one.
func Equal(a, b *model.Fingerprint) bool {
	return a.Equal(b)
}

// Marshal serializes a fingerprint to its fixed 20-byte wire form.
func Marshal(fp *model.Fingerprint) []byte {
	buf := make([]byte, wireLen)
	binary.BigEndian.PutUint64(buf[0:8], uint64(fp.Size))
	binary.BigEndian.PutUint64(buf[8:16], uint64(fp.ModTime.Unix()))
	binary.BigEndian.PutUint32(buf[16:20], fp.CRC)
	return buf
}

// Unmarshal parses the fixed wire form produced by Marshal.
func Unmarshal(buf []byte) (*model.Fingerprint, error) {
	if len(buf) != wireLen {
		return nil, io.ErrUnexpectedEOF
	}
	return &model.Fingerprint{
		Size:    int64(binary.BigEndian.Uint64(buf[0:8])),
		ModTime: time.Unix(int64(binary.BigEndian.Uint64(buf[8:16])), 0).UTC(),
		CRC:     binary.BigEndian.Uint32(buf[16:20]),
	}, nil
}
