// segcache.go: package-level defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package segcache

const (
	// DefaultInitialCapacity is the bucket-count hint used when the
	// builder's InitialCapacity knob is left unset.
	DefaultInitialCapacity = 16

	// DefaultConcurrencyLevel is the number of segments used when the
	// builder's ConcurrencyLevel knob is left unset.
	DefaultConcurrencyLevel = 4

	// maxSegments bounds how many segments a single table may have,
	// regardless of the requested concurrency level.
	maxSegments = 1 << 16

	// segmentLoadFactor is the load factor at which a segment doubles
	// its bucket array.
	segmentLoadFactor = 0.75

	// promotionBufferSize is the most reads a segment buffers between
	// drains into the recency list; reads past it are not recorded.
	promotionBufferSize = 64
)
