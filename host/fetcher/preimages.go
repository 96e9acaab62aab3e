package fetcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/celo-org/op-succinct/host"
)

var _ host.ChainFetcher = (*Fetcher)(nil)

func (f *Fetcher) L1HeaderRLP(ctx context.Context, blockHash common.Hash) ([]byte, error) {
	return headerRLP(ctx, f.l1, blockHash)
}

func (f *Fetcher) L1Transactions(ctx context.Context, blockHash common.Hash) ([][]byte, error) {
	return blockTransactions(ctx, f.l1, blockHash)
}

func (f *Fetcher) L1Receipts(ctx context.Context, blockHash common.Hash) ([][]byte, error) {
	receipts, err := f.l1.BlockReceipts(ctx, rpc.BlockNumberOrHashWithHash(blockHash, false))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipts of L1 block %s: %w", blockHash, err)
	}
	out := make([][]byte, 0, len(receipts))
	for _, receipt := range receipts {
		enc, err := receipt.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode receipt %s: %w", receipt.TxHash, err)
		}
		out = append(out, enc)
	}
	return out, nil
}

func (f *Fetcher) L2HeaderRLP(ctx context.Context, blockHash common.Hash) ([]byte, error) {
	return headerRLP(ctx, f.l2, blockHash)
}

func (f *Fetcher) L2Transactions(ctx context.Context, blockHash common.Hash) ([][]byte, error) {
	return blockTransactions(ctx, f.l2, blockHash)
}

// L2StateNode retrieves an L2 state trie node by hash from the execution
// client's raw database.
func (f *Fetcher) L2StateNode(ctx context.Context, nodeHash common.Hash) ([]byte, error) {
	var node hexutil.Bytes
	if err := f.l2RPC.CallContext(ctx, &node, "debug_dbGet", nodeHash.Hex()); err != nil {
		return nil, fmt.Errorf("failed to fetch L2 state node %s: %w", nodeHash, err)
	}
	return node, nil
}

// L2Code retrieves contract code by hash. Code is stored in the raw database
// under a one-byte prefix in front of the code hash.
func (f *Fetcher) L2Code(ctx context.Context, codeHash common.Hash) ([]byte, error) {
	key := append([]byte("c"), codeHash.Bytes()...)
	var code hexutil.Bytes
	if err := f.l2RPC.CallContext(ctx, &code, "debug_dbGet", hexutil.Encode(key)); err != nil {
		return nil, fmt.Errorf("failed to fetch L2 contract code %s: %w", codeHash, err)
	}
	return code, nil
}

// L2OutputPreimage serves an output-root preimage previously observed via
// L2OutputRoot. Run inputs are always assembled before the preimage server
// starts, so the roots the client can legitimately ask about are cached.
func (f *Fetcher) L2OutputPreimage(ctx context.Context, outputRoot common.Hash) ([]byte, error) {
	f.outputsMu.RLock()
	preimage, ok := f.outputs[outputRoot]
	f.outputsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown output root: %s", outputRoot)
	}
	return preimage, nil
}

func headerRLP(ctx context.Context, client *ethclient.Client, blockHash common.Hash) ([]byte, error) {
	header, err := client.HeaderByHash(ctx, blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch header %s: %w", blockHash, err)
	}
	enc, err := rlp.EncodeToBytes(header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header %s: %w", blockHash, err)
	}
	return enc, nil
}

func blockTransactions(ctx context.Context, client *ethclient.Client, blockHash common.Hash) ([][]byte, error) {
	block, err := client.BlockByHash(ctx, blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %s: %w", blockHash, err)
	}
	txs := block.Transactions()
	out := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		enc, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode tx %s: %w", tx.Hash(), err)
		}
		out = append(out, enc)
	}
	return out, nil
}
