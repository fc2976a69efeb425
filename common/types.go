// Package common holds the small value types shared by every other
// package: account addresses, transaction ids, and block hashes, plus
// random generation, hex parsing and the leading-zero-bit count mining
// checks. The types mirror the teacher's common.Address / common.Hash
// split.
package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"

	uuid "github.com/hashicorp/go-uuid"
)

// Address is an opaque 64-bit account identifier. It also identifies a
// node in the World registry: a node's address doubles as its account.
type Address uint64

func (a Address) String() string { return fmt.Sprintf("@%d", uint64(a)) }

// TransactionId is an opaque 64-bit identifier, expected unique within
// a single block.
type TransactionId uint64

func (id TransactionId) String() string { return fmt.Sprintf("%d", uint64(id)) }

// RandomAddress returns a fresh, uniformly random Address.
func RandomAddress() Address { return Address(randomUint64()) }

// RandomTransactionId returns a fresh, uniformly random TransactionId.
func RandomTransactionId() TransactionId { return TransactionId(randomUint64()) }

func randomUint64() uint64 {
	b, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		panic(err) // entropy source failing indicates a broken host, not a recoverable condition
	}
	return binary.LittleEndian.Uint64(b)
}

// HashSize is the length in bytes of a BlockHash (SHA-256 digest size).
const HashSize = 32

// BlockHash is the SHA-256 digest of a Block's canonical serialization.
// The zero value is the "empty" hash used as the genesis block's
// prefix_hash.
type BlockHash [HashSize]byte

// EmptyHash is the distinguished empty BlockHash.
var EmptyHash = BlockHash{}

// IsEmpty reports whether h is the distinguished empty hash.
func (h BlockHash) IsEmpty() bool { return h == EmptyHash }

func (h BlockHash) String() string { return "#" + hex.EncodeToString(h[:]) }

// Bytes returns the hash's underlying bytes as a slice.
func (h BlockHash) Bytes() []byte { return h[:] }

// MarshalText renders the hash as hex so it reads sensibly wherever a
// Block is serialized to JSON.
func (h BlockHash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// LeadingZeroBits counts the number of leading zero bits in the hash,
// read left to right (most significant byte first).
func (h BlockHash) LeadingZeroBits() int {
	total := 0
	for _, b := range h {
		if b == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(b)
		break
	}
	return total
}

// BlockHashFromHex parses an even-length lowercase hex string into a
// BlockHash. Used by the admin HTTP surface to decode path parameters.
func BlockHashFromHex(s string) (BlockHash, error) {
	var h BlockHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length: got %d bytes, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}
