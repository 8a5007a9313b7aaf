package common

import (
	"crypto/sha256"
	"fmt"
)

// SHA256 ...
func SHA256(hashBytes []byte) []byte {
	hasher := sha256.New()
	hasher.Write(hashBytes)
	hash := hasher.Sum(nil)
	return hash
}

// HashHex returns the canonical string form of a hash: 0x prefix followed by
// upper-case hex digits. All operation and view identifiers use this form.
func HashHex(hash []byte) string {
	return fmt.Sprintf("0x%X", hash)
}
