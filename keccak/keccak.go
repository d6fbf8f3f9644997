// Package keccak wraps the legacy Keccak-256 hash, the EVM's native digest.
package keccak

import "golang.org/x/crypto/sha3"

// Sum256 returns the Keccak-256 digest of data.
func Sum256(data []byte) [32]byte {
	w := sha3.NewLegacyKeccak256()
	w.Write(data)

	var h [32]byte
	w.Sum(h[:0])
	return h
}
