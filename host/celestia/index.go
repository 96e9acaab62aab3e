package celestia

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/celo-org/op-succinct/host"
)

// ErrPointerNotFound is returned when no blob pointer covering the requested
// L2 block can be located on L1.
var ErrPointerNotFound = errors.New("no blob pointer found")

// maxInboxScanBlocks bounds how many L1 blocks the index walks backwards
// when looking for the batcher transaction that made an L2 block safe.
const maxInboxScanBlocks = 1000

// BlobIndex locates the DA blob holding the batch data for an L2 block.
type BlobIndex interface {
	PointerForL2Block(ctx context.Context, l2Block uint64) (*BlobPointer, error)
}

// InboxIndex resolves blob pointers by scanning batch-inbox calldata on L1.
// An L2 block only becomes safe once the batch covering it is available, so
// the covering pointer is the most recent one at or before the L1 block
// where the L2 block entered the safe chain.
type InboxIndex struct {
	logger  log.Logger
	fetcher host.ChainFetcher
}

var _ BlobIndex = (*InboxIndex)(nil)

func NewInboxIndex(logger log.Logger, f host.ChainFetcher) *InboxIndex {
	return &InboxIndex{logger: logger, fetcher: f}
}

func (i *InboxIndex) PointerForL2Block(ctx context.Context, l2Block uint64) (*BlobPointer, error) {
	safeL1, err := i.fetcher.L1BlockWhereSafe(ctx, l2Block)
	if err != nil {
		return nil, fmt.Errorf("failed to locate L1 block where L2 block %d became safe: %w", l2Block, err)
	}
	genesisL1 := i.fetcher.RollupConfig().Genesis.L1.Number
	for n := safeL1; n >= genesisL1 && safeL1-n < maxInboxScanBlocks; n-- {
		txs, err := i.fetcher.BatcherTransactions(ctx, n)
		if err != nil {
			return nil, err
		}
		// Walk the block's batcher txs in reverse so the latest pointer wins.
		for j := len(txs) - 1; j >= 0; j-- {
			pointer, err := ParseBatcherData(txs[j])
			if errors.Is(err, ErrNotBlobPointer) {
				continue
			}
			if err != nil {
				return nil, err
			}
			i.logger.Debug("Resolved blob pointer", "l2_block", l2Block, "l1_block", n, "da_height", pointer.BlockHeight)
			return pointer, nil
		}
		if n == 0 {
			break
		}
	}
	return nil, fmt.Errorf("%w: L2 block %d", ErrPointerNotFound, l2Block)
}
