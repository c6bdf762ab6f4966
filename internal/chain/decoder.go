// internal/chain/decoder.go
package chain

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/chainproof/provenance-backend/internal/apperrors"
)

// Fixed layout of the on-chain product account. All numeric fields are
// little-endian; the URI lives in a fixed window with a 4-byte length prefix,
// the remainder of the window is padding.
const (
	discriminatorSize  = 8
	keySize            = 32
	hashSize           = 32
	uriWindowSize      = 204
	uriLengthPrefix    = 4
	uriMaxLength       = uriWindowSize - uriLengthPrefix
	ProductAccountSize = discriminatorSize + 2*keySize + 2*hashSize + uriWindowSize + 2
)

// ProductAccount is the typed view of a decoded product account. Keys and
// hashes are hex-encoded.
type ProductAccount struct {
	ManufacturerKey string
	OwnerKey        string
	SerialHash      string
	MetadataHash    string
	URI             string
	Active          bool
	Bump            byte
}

// DecodeProductAccount decodes a raw account buffer. It is a pure function:
// no I/O, no side effects, identical bytes always yield an identical record.
func DecodeProductAccount(data []byte) (*ProductAccount, error) {
	if len(data) != ProductAccountSize {
		return nil, apperrors.MalformedAccount("account data is %d bytes, want %d", len(data), ProductAccountSize)
	}

	off := discriminatorSize
	manufacturer := data[off : off+keySize]
	off += keySize
	owner := data[off : off+keySize]
	off += keySize
	serialHash := data[off : off+hashSize]
	off += hashSize
	metadataHash := data[off : off+hashSize]
	off += hashSize

	uriLen := binary.LittleEndian.Uint32(data[off : off+uriLengthPrefix])
	if uriLen > uriMaxLength {
		return nil, apperrors.MalformedAccount("uri length %d exceeds window of %d", uriLen, uriMaxLength)
	}
	uriStart := off + uriLengthPrefix
	uri := string(data[uriStart : uriStart+int(uriLen)])
	off += uriWindowSize

	return &ProductAccount{
		ManufacturerKey: hex.EncodeToString(manufacturer),
		OwnerKey:        hex.EncodeToString(owner),
		SerialHash:      hex.EncodeToString(serialHash),
		MetadataHash:    hex.EncodeToString(metadataHash),
		URI:             uri,
		Active:          data[off] != 0,
		Bump:            data[off+1],
	}, nil
}

// EncodeProductAccount produces the fixed-layout byte representation of a
// product account. The inverse of DecodeProductAccount.
func EncodeProductAccount(acc *ProductAccount) ([]byte, error) {
	if len(acc.URI) > uriMaxLength {
		return nil, apperrors.MalformedAccount("uri length %d exceeds window of %d", len(acc.URI), uriMaxLength)
	}

	buf := make([]byte, ProductAccountSize)
	off := discriminatorSize
	for _, field := range []struct {
		hexValue string
		size     int
	}{
		{acc.ManufacturerKey, keySize},
		{acc.OwnerKey, keySize},
		{acc.SerialHash, hashSize},
		{acc.MetadataHash, hashSize},
	} {
		raw, err := hex.DecodeString(field.hexValue)
		if err != nil || len(raw) != field.size {
			return nil, apperrors.MalformedAccount("field is not a %d-byte hex value", field.size)
		}
		copy(buf[off:], raw)
		off += field.size
	}

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(acc.URI)))
	copy(buf[off+uriLengthPrefix:], acc.URI)
	off += uriWindowSize

	if acc.Active {
		buf[off] = 1
	}
	buf[off+1] = acc.Bump
	return buf, nil
}
