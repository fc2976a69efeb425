package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/klaytn/powsim/common"
)

// Block is a container of transactions plus a proof-of-work nonce over
// its own canonical serialization. The genesis block has no
// transactions, an empty PrefixHash, miner 0 and nonce 0.
type Block struct {
	Transactions []BlockTransaction
	PrefixHash   common.BlockHash
	Miner        common.Address
	Nonce        uint64
}

// Genesis returns a fresh genesis block: empty transactions, empty
// prefix hash, miner zero, nonce zero.
func Genesis() Block {
	return Block{
		Transactions: nil,
		PrefixHash:   common.EmptyHash,
		Miner:        common.Address(0),
		Nonce:        0,
	}
}

// Encode produces the canonical, deterministic serialization of the
// block used for hashing: a length-prefixed binary encoding of every
// field, integers little-endian, in field-declaration order:
// transactions, prefix_hash, miner, nonce.
func (b Block) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(64 + len(b.Transactions)*64)

	putU64(buf, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		putU64(buf, uint64(tx.Id))
		putHash(buf, tx.PrefixHash)
		putU64(buf, uint64(tx.Info.Sender))
		putU64(buf, uint64(tx.Info.Receiver))
		putU64(buf, tx.Info.Amount)
	}
	putHash(buf, b.PrefixHash)
	putU64(buf, uint64(b.Miner))
	putU64(buf, b.Nonce)
	return buf.Bytes()
}

func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

// putHash writes length-prefixed hash bytes. An empty BlockHash (the
// genesis prefix marker) is encoded as a zero-length field so it is
// distinguishable from any real 32-byte digest.
func putHash(buf *bytes.Buffer, h common.BlockHash) {
	if h.IsEmpty() {
		putU64(buf, 0)
		return
	}
	putU64(buf, uint64(common.HashSize))
	buf.Write(h.Bytes())
}

// Hash computes the SHA-256 digest of the block's canonical encoding.
func (b Block) Hash() common.BlockHash {
	sum := sha256.Sum256(b.Encode())
	return common.BlockHash(sum)
}

// WellMined reports whether the block's hash has at least difficulty
// leading zero bits.
func (b Block) WellMined(difficulty int) bool {
	return b.Hash().LeadingZeroBits() >= difficulty
}

// AttemptMining walks nonces in [from, from+count) over a candidate
// block built from (prefix, miner, txs), returning the first
// well-mined block found. It is a pure function with no I/O: the
// caller supplies the nonce range so that many nodes can search
// disjoint ranges concurrently without coordination.
func AttemptMining(prefix common.BlockHash, miner common.Address, txs []BlockTransaction, from, count uint64, difficulty int) (Block, bool) {
	candidate := Block{
		Transactions: txs,
		PrefixHash:   prefix,
		Miner:        miner,
	}
	for n := from; n < from+count; n++ {
		candidate.Nonce = n
		if candidate.WellMined(difficulty) {
			return candidate, true
		}
	}
	return Block{}, false
}
