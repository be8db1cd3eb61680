package rx

import (
	"github.com/zeebo/xxh3"
)

// TransmitterHash folds the transmitter address into 32 bits. Collisions are acceptable,
// the unique transmitter count is an estimate anyway.
func TransmitterHash(source [6]byte) uint32 {
	return uint32(xxh3.Hash(source[:]))
}

// TransmitterSet is a fixed-capacity set of transmitter hashes. It never allocates after construction.
type TransmitterSet struct {
	hashes []uint32
	count  int
}

func NewTransmitterSet(capacity int) TransmitterSet {
	return TransmitterSet{
		hashes: make([]uint32, capacity),
	}
}

// Add the given hash to the set. Add returns true if the hash was not yet in the set and could be inserted.
// If the set is full, unknown hashes are silently dropped.
func (s *TransmitterSet) Add(hash uint32) bool {
	for i := 0; i < s.count; i++ {
		if s.hashes[i] == hash {
			return false
		}
	}
	if s.count == len(s.hashes) {
		return false
	}
	s.hashes[s.count] = hash
	s.count++
	return true
}

func (s *TransmitterSet) Len() int {
	return s.count
}

func (s *TransmitterSet) Cap() int {
	return len(s.hashes)
}

func (s *TransmitterSet) Reset() {
	s.count = 0
}
