// Package bloom provides a probabilistic set of event ids. A negative answer
// is definite; a positive one needs confirming against the store.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Filter is a concurrency-safe bloom filter over strings.
type Filter struct {
	mu        sync.RWMutex
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a filter sized for expectedItems at the target false positive
// rate. Out-of-range arguments fall back to 1000 items and 1%.
func New(expectedItems int, targetFPR float64) *Filter {
	numBits, numHashes := OptimalParameters(expectedItems, targetFPR)
	words := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, words),
		numBits:   uint64(words * 64),
		numHashes: uint64(numHashes),
	}
}

// OptimalParameters returns the bit count m = -n*ln(p)/ln(2)^2 and hash count
// k = (m/n)*ln(2) for n items at false positive rate p.
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	k := (m / n) * math.Ln2

	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil(k))
	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add inserts id.
func (f *Filter) Add(id string) {
	h1, h2 := murmur3.Sum128([]byte(id))

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// MayContain reports whether id might have been added.
func (f *Filter) MayContain(id string) bool {
	h1, h2 := murmur3.Sum128([]byte(id))

	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of Add calls.
func (f *Filter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FalsePositiveRate estimates the current rate as (1 - e^(-k*n/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
