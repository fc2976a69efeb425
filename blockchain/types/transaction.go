package types

import "github.com/klaytn/powsim/common"

// Transaction is an unsigned transfer of amount from sender to
// receiver. Senders are trusted: no signature is ever checked.
type Transaction struct {
	Sender   common.Address
	Receiver common.Address
	Amount   uint64
}

// BlockTransaction binds a Transaction to the chain tip it was minted
// against. PrefixHash is only valid inside a Block whose own
// PrefixHash matches — this is what prevents a transaction created
// against an abandoned tip from silently reappearing after a reorg.
type BlockTransaction struct {
	Id         common.TransactionId
	PrefixHash common.BlockHash
	Info       Transaction
}
