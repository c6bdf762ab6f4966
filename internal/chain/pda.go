// internal/chain/pda.go
package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// DeriveAddress computes the deterministic program-derived address for a seed
// list. The derivation is purely local: SHA-256 over the length-prefixed
// seeds, the program id and a domain tag, hex-encoded. The same seeds always
// produce the same address; seed order matters.
func DeriveAddress(programID string, seeds ...[]byte) string {
	h := sha256.New()
	var lenBuf [4]byte
	for _, seed := range seeds {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(seed)))
		h.Write(lenBuf[:])
		h.Write(seed)
	}
	h.Write([]byte(programID))
	h.Write([]byte("pda"))
	return hex.EncodeToString(h.Sum(nil))
}

// ProductAddress derives the on-chain address of a product record from its
// serial number.
func ProductAddress(programID, serialNumber string) string {
	return DeriveAddress(programID, []byte("product"), []byte(serialNumber))
}

// TransferAddress derives the address of the in-flight transfer record
// between two parties for a product.
func TransferAddress(programID, serialNumber, fromKey, toKey string) string {
	return DeriveAddress(programID, []byte("transfer"), []byte(serialNumber), []byte(fromKey), []byte(toKey))
}
