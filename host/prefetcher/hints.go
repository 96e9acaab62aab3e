package prefetcher

import (
	"github.com/ethereum/go-ethereum/common"
)

// Hint kinds understood by the prefetcher. A hint is the kind followed by a
// single space and a hex-encoded 32-byte identifier.
const (
	HintL1BlockHeader  = "l1-block-header"
	HintL1Transactions = "l1-transactions"
	HintL1Receipts     = "l1-receipts"
	HintL2BlockHeader  = "l2-block-header"
	HintL2Transactions = "l2-transactions"
	HintL2StateNode    = "l2-state-node"
	HintL2Code         = "l2-code"
	HintL2Output       = "l2-output"
)

type L1BlockHeaderHint common.Hash

func (l L1BlockHeaderHint) Hint() string {
	return HintL1BlockHeader + " " + common.Hash(l).String()
}

type L1TransactionsHint common.Hash

func (l L1TransactionsHint) Hint() string {
	return HintL1Transactions + " " + common.Hash(l).String()
}

type L1ReceiptsHint common.Hash

func (l L1ReceiptsHint) Hint() string {
	return HintL1Receipts + " " + common.Hash(l).String()
}

type L2BlockHeaderHint common.Hash

func (l L2BlockHeaderHint) Hint() string {
	return HintL2BlockHeader + " " + common.Hash(l).String()
}

type L2TransactionsHint common.Hash

func (l L2TransactionsHint) Hint() string {
	return HintL2Transactions + " " + common.Hash(l).String()
}

type L2StateNodeHint common.Hash

func (l L2StateNodeHint) Hint() string {
	return HintL2StateNode + " " + common.Hash(l).String()
}

type L2CodeHint common.Hash

func (l L2CodeHint) Hint() string {
	return HintL2Code + " " + common.Hash(l).String()
}

type L2OutputHint common.Hash

func (l L2OutputHint) Hint() string {
	return HintL2Output + " " + common.Hash(l).String()
}
