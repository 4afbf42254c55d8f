// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package content

import (
	"hash/fnv"
	"math"
)

// bloomFilter is a probabilistic set used as a fast negative check in front of
// the exact hash set. Test never returns false for an added key.
// Not safe for concurrent use; RecordStore guards it.
type bloomFilter struct {
	bits    []uint64
	size    uint64
	hashFns int
}

// newBloomFilter sizes the filter for expectedItems at the target false positive rate:
// m = -n·ln(p)/ln(2)², k = (m/n)·ln(2).
func newBloomFilter(expectedItems int, falsePositiveRate float64) *bloomFilter {
	if expectedItems <= 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	m := int(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}
	k := int(float64(m) / float64(expectedItems) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	words := (m + 63) / 64
	return &bloomFilter{
		bits:    make([]uint64, words),
		size:    uint64(words * 64),
		hashFns: k,
	}
}

func (bf *bloomFilter) add(key string) {
	h1, h2 := bloomHashes(key)
	for i := 0; i < bf.hashFns; i++ {
		idx := (h1 + uint64(i)*h2) % bf.size
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
}

func (bf *bloomFilter) test(key string) bool {
	h1, h2 := bloomHashes(key)
	for i := 0; i < bf.hashFns; i++ {
		idx := (h1 + uint64(i)*h2) % bf.size
		if bf.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

func (bf *bloomFilter) reset() {
	for i := range bf.bits {
		bf.bits[i] = 0
	}
}

// bloomHashes derives the two base hashes for double hashing h(i) = h1 + i·h2.
func bloomHashes(key string) (uint64, uint64) {
	a := fnv.New64a()
	_, _ = a.Write([]byte(key))
	b := fnv.New64()
	_, _ = b.Write([]byte(key))
	_, _ = b.Write([]byte{0xff})
	return a.Sum64(), b.Sum64()
}
