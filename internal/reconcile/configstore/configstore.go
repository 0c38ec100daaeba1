// Package configstore persists the SyncConfig ensemble to an
// authenticated-encrypted, slot-rotated file pair, following the
// teacher's config.go for the plaintext JSON shape but adding the
// encryption and crash-safe slot rotation spec §6 requires: writes
// always land on the slot that is not the one currently believed
// current, so a crash mid-write leaves the other slot intact and
// loadable.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/foldersync/syncengine/internal/reconcile/collab"
	"github.com/foldersync/syncengine/internal/reconcile/model"
	"github.com/foldersync/syncengine/internal/utils"
)

var magic = [4]byte{'F', 'S', 'C', 'F'}

const (
	wireVersion = 1
	ivLen       = 16
	hmacLen     = 32
	headerLen   = 4 + 1 + 3 + ivLen // magic + version + reserved + iv
)

// ErrCorrupt is returned when a slot's magic, version, or HMAC doesn't
// check out.
var ErrCorrupt = fmt.Errorf("configstore: slot failed integrity check")

// Store persists a SyncConfig ensemble across two rotating slot files
// at path+".0" and path+".1".
type Store struct {
	path   string
	key    []byte
	crypto collab.Crypto

	activeSlot int // 0 or 1; -1 if nothing loaded yet
}

// New returns a Store keyed by key (must be 16, 24, or 32 bytes for
// AES-128/192/256) persisting to path+".0"/path+".1". crypto is
// usually StdCrypto{} but any collab.Crypto implementation works.
func New(path string, key []byte, crypto collab.Crypto) *Store {
	return &Store{path: path, key: key, crypto: crypto, activeSlot: -1}
}

func (s *Store) slotPath(slot int) string {
	return fmt.Sprintf("%s.%d", s.path, slot)
}

// Load reads the newest valid slot. If both slots are corrupt or
// missing, it returns an empty ensemble (first run) rather than an
// error, matching the teacher's LoadClientConfig treating a missing
// file as "no config yet".
func (s *Store) Load() ([]*model.SyncConfig, error) {
	var best []*model.SyncConfig
	bestGen := -1
	bestSlot := -1

	for slot := 0; slot < 2; slot++ {
		cfgs, gen, err := s.readSlot(slot)
		if err != nil {
			continue // missing or corrupt: skip, not fatal
		}
		// The generation is stored in one header byte and wraps after
		// 255, so "newer" is decided modulo 256.
		if bestSlot == -1 || int8(byte(gen)-byte(bestGen)) > 0 {
			best, bestGen, bestSlot = cfgs, gen, slot
		}
	}

	if bestSlot == -1 {
		s.activeSlot = -1
		return nil, nil
	}
	s.activeSlot = bestSlot
	return best, nil
}

// Save writes cfgs to the slot that is not currently active, so the
// previously active slot remains a valid fallback if the process dies
// mid-write. Only on a fully successful write does activeSlot flip.
func (s *Store) Save(cfgs []*model.SyncConfig) error {
	nextSlot := 0
	gen := 0
	if s.activeSlot == 0 {
		nextSlot = 1
	}
	if s.activeSlot >= 0 {
		if _, prevGen, err := s.readSlot(s.activeSlot); err == nil {
			gen = prevGen + 1
		}
	}

	if err := s.writeSlot(nextSlot, cfgs, gen); err != nil {
		return err
	}
	s.activeSlot = nextSlot
	return nil
}

// wireConfigs is the plaintext payload shape spec §6 specifies: a
// wrapper object carrying the ensemble under the "sy" key, not a bare
// array, so the wire format can grow sibling keys later without a
// version bump.
type wireConfigs struct {
	Sy []*model.SyncConfig `json:"sy"`
}

func (s *Store) writeSlot(slot int, cfgs []*model.SyncConfig, gen int) error {
	plaintext, err := json.Marshal(wireConfigs{Sy: cfgs})
	if err != nil {
		return fmt.Errorf("marshal configs: %w", err)
	}

	iv, err := s.crypto.RandomBytes(ivLen)
	if err != nil {
		return fmt.Errorf("generate iv: %w", err)
	}

	ciphertext, err := s.crypto.Encrypt(s.key, iv, pkcs7Pad(plaintext, 16))
	if err != nil {
		return fmt.Errorf("encrypt configs: %w", err)
	}

	header := make([]byte, headerLen)
	copy(header[0:4], magic[:])
	header[4] = wireVersion
	header[5] = byte(gen)
	copy(header[8:8+ivLen], iv)

	body := append(header, ciphertext...)
	mac := s.crypto.HMAC(s.key, body)

	out := append(body, mac...)

	path := s.slotPath(slot)
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("ensure parent dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write slot %d: %w", slot, err)
	}
	return nil
}

func (s *Store) readSlot(slot int) ([]*model.SyncConfig, int, error) {
	raw, err := os.ReadFile(s.slotPath(slot))
	if err != nil {
		return nil, 0, err
	}
	if len(raw) < headerLen+hmacLen {
		return nil, 0, ErrCorrupt
	}

	body := raw[:len(raw)-hmacLen]
	wantMAC := raw[len(raw)-hmacLen:]
	gotMAC := s.crypto.HMAC(s.key, body)
	if !hmacEqual(wantMAC, gotMAC) {
		return nil, 0, ErrCorrupt
	}

	if string(body[0:4]) != string(magic[:]) {
		return nil, 0, ErrCorrupt
	}
	if body[4] != wireVersion {
		return nil, 0, ErrCorrupt
	}
	gen := int(body[5])
	iv := body[8 : 8+ivLen]
	ciphertext := body[headerLen:]

	padded, err := s.crypto.Decrypt(s.key, iv, ciphertext)
	if err != nil {
		return nil, 0, fmt.Errorf("decrypt slot %d: %w", slot, err)
	}
	plaintext, err := pkcs7Unpad(padded)
	if err != nil {
		return nil, 0, fmt.Errorf("unpad slot %d: %w", slot, err)
	}

	var wire wireConfigs
	if err := json.Unmarshal(plaintext, &wire); err != nil {
		return nil, 0, fmt.Errorf("unmarshal slot %d: %w", slot, err)
	}
	return wire.Sy, gen, nil
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
