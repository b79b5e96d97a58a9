package game

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/sha3"
)

// SeedInput is the public data mixed into the daily roll. Everything here is
// knowable before the roll is applied, so the outcome is predictable to
// anyone who can also see the beacon hash.
type SeedInput struct {
	Now        int64
	Slot       uint64
	CycleStart int64
	Bump       uint8
	RecentHash []byte
}

// MixSeed hashes the input with keccak256 and returns the first 8 bytes as a
// little-endian integer.
func MixSeed(in SeedInput) uint64 {
	var buf [25]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(in.Now))
	binary.LittleEndian.PutUint64(buf[8:16], in.Slot)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(in.CycleStart))
	buf[24] = in.Bump

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	if len(in.RecentHash) > 0 {
		h.Write(in.RecentHash)
	}
	return binary.LittleEndian.Uint64(h.Sum(nil)[:8])
}

// Beacon supplies the slot counter and recent hash that stand in for chain
// state.
type Beacon interface {
	Recent() (slot uint64, hash []byte)
}

// KeccakEntropy is the default EntropySource: the beacon output mixed with
// the caller's timestamp and cycle start.
type KeccakEntropy struct {
	Beacon Beacon
	Bump   uint8
}

func (k KeccakEntropy) Sample(in SeedInput) uint64 {
	in.Bump = k.Bump
	if k.Beacon != nil {
		in.Slot, in.RecentHash = k.Beacon.Recent()
	}
	return MixSeed(in)
}

// RandomBeacon advances a slot counter and draws a fresh 32-byte hash from
// crypto/rand on every call.
type RandomBeacon struct {
	mu   sync.Mutex
	slot uint64
}

func (b *RandomBeacon) Recent() (uint64, []byte) {
	b.mu.Lock()
	b.slot++
	slot := b.slot
	b.mu.Unlock()

	hash := make([]byte, 32)
	if _, err := rand.Read(hash); err != nil {
		return slot, nil
	}
	return slot, hash
}

// FixedEntropy always returns the same seed.
type FixedEntropy uint64

func (f FixedEntropy) Sample(SeedInput) uint64 { return uint64(f) }
