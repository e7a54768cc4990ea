package utils

import (
	"fmt"
	"math"
)

// CheckMultiplyOverflow reports whether multiplying a and b would overflow uint64.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}

	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}

	return nil
}

// SafeMultiply multiplies a and b, failing instead of wrapping on overflow.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// ValidateBufferSize fails if size is zero or exceeds maxSize. Used to
// reject allocation requests derived from untrusted on-disk length fields
// before they reach make([]byte, n).
func ValidateBufferSize(size, maxSize uint64, description string) error {
	if size == 0 {
		return fmt.Errorf("%s: size cannot be zero", description)
	}

	if size > maxSize {
		return fmt.Errorf("%s: size %d exceeds maximum %d", description, size, maxSize)
	}

	return nil
}

// Sanity limits for allocations driven by on-disk length fields. A corrupt
// or adversarial database should not be able to force a multi-gigabyte
// allocation from a single 32-bit length prefix.
const (
	// MaxSectionSize bounds a single container section payload. It admits
	// every 32-bit length, so it only rejects oversized 64-bit lengths
	// (file_version >= 5 headers).
	MaxSectionSize = 1 << 32

	// MaxBlobSize bounds the concatenated value of a node-key blob.
	MaxBlobSize = 256 * 1024 * 1024

	// MaxPageSize bounds a single B-tree page.
	MaxPageSize = 1 << 20

	// MaxNameCount bounds the number of entries the NAM section's name
	// count field may claim before its address array is allocated.
	MaxNameCount = 64 * 1024 * 1024
)
