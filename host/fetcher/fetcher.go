package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/celo-org/op-succinct/host"
	"github.com/celo-org/op-succinct/rollup"
)

// Fetcher retrieves L1 and L2 chain data over RPC. It serves both the
// host-level queries needed to assemble run inputs and the raw preimage
// payloads requested by the prefetcher.
type Fetcher struct {
	logger    log.Logger
	cfg       *rollup.Config
	l1        *ethclient.Client
	l2        *ethclient.Client
	l2RPC     *rpc.Client
	rollupRPC *rpc.Client

	// outputs caches output-root preimages observed via OutputAtBlock, so a
	// later l2-output hint can be served without a root-to-number index.
	outputsMu sync.RWMutex
	outputs   map[common.Hash][]byte
}

func NewFetcher(ctx context.Context, logger log.Logger, cfg *rollup.Config, l1URL, l2URL, rollupURL string) (*Fetcher, error) {
	l1RPC, err := rpc.DialContext(ctx, l1URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial L1 RPC %s: %w", l1URL, err)
	}
	l2RPC, err := rpc.DialContext(ctx, l2URL)
	if err != nil {
		l1RPC.Close()
		return nil, fmt.Errorf("failed to dial L2 RPC %s: %w", l2URL, err)
	}
	rollupRPC, err := rpc.DialContext(ctx, rollupURL)
	if err != nil {
		l1RPC.Close()
		l2RPC.Close()
		return nil, fmt.Errorf("failed to dial rollup node RPC %s: %w", rollupURL, err)
	}
	return &Fetcher{
		logger:    logger,
		cfg:       cfg,
		l1:        ethclient.NewClient(l1RPC),
		l2:        ethclient.NewClient(l2RPC),
		l2RPC:     l2RPC,
		rollupRPC: rollupRPC,
		outputs:   make(map[common.Hash][]byte),
	}, nil
}

func (f *Fetcher) Close() {
	f.l1.Close()
	f.l2.Close()
	f.rollupRPC.Close()
}

func (f *Fetcher) RollupConfig() *rollup.Config {
	return f.cfg
}

// L1HeadHeader returns the current L1 chain head.
func (f *Fetcher) L1HeadHeader(ctx context.Context) (*types.Header, error) {
	header, err := f.l1.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch L1 head: %w", err)
	}
	return header, nil
}

func (f *Fetcher) L1HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	header, err := f.l1.HeaderByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch L1 block %s: %w", hash, err)
	}
	return header, nil
}

func (f *Fetcher) L1HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	header, err := f.l1.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch L1 block %d: %w", number, err)
	}
	return header, nil
}

// FinalizedL2BlockNumber returns the number of the finalized L2 block, as
// reported by the execution client.
func (f *Fetcher) FinalizedL2BlockNumber(ctx context.Context) (uint64, error) {
	header, err := f.l2.HeaderByNumber(ctx, big.NewInt(rpc.FinalizedBlockNumber.Int64()))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch finalized L2 block: %w", err)
	}
	return header.Number.Uint64(), nil
}

func (f *Fetcher) L2BlockHashByNumber(ctx context.Context, number uint64) (common.Hash, error) {
	header, err := f.l2.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch L2 block %d: %w", number, err)
	}
	return header.Hash(), nil
}

// L1BlockAtOrAfterTimestamp finds the earliest L1 block whose timestamp is at
// or after the given timestamp, by binary search between the rollup's L1
// genesis and the current head. Returns the head when the whole chain is
// older than the timestamp.
func (f *Fetcher) L1BlockAtOrAfterTimestamp(ctx context.Context, timestamp uint64) (rollup.BlockID, error) {
	head, err := f.L1HeadHeader(ctx)
	if err != nil {
		return rollup.BlockID{}, err
	}
	if head.Time < timestamp {
		return rollup.BlockID{Hash: head.Hash(), Number: head.Number.Uint64()}, nil
	}
	lo, hi := f.cfg.Genesis.L1.Number, head.Number.Uint64()
	for lo < hi {
		mid := lo + (hi-lo)/2
		header, err := f.L1HeaderByNumber(ctx, mid)
		if err != nil {
			return rollup.BlockID{}, err
		}
		if header.Time < timestamp {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	header, err := f.L1HeaderByNumber(ctx, lo)
	if err != nil {
		return rollup.BlockID{}, err
	}
	return rollup.BlockID{Hash: header.Hash(), Number: lo}, nil
}

type outputAtBlockResponse struct {
	Version               common.Hash `json:"version"`
	OutputRoot            common.Hash `json:"outputRoot"`
	StateRoot             common.Hash `json:"stateRoot"`
	WithdrawalStorageRoot common.Hash `json:"withdrawalStorageRoot"`
	BlockRef              struct {
		Hash   common.Hash    `json:"hash"`
		Number hexutil.Uint64 `json:"number"`
	} `json:"blockRef"`
}

// L2OutputRoot returns the output root committing to the given L2 block,
// querying the rollup node. The output preimage is retained so a later
// preimage request against the root can be served.
func (f *Fetcher) L2OutputRoot(ctx context.Context, blockNumber uint64) (common.Hash, error) {
	var resp outputAtBlockResponse
	if err := f.rollupRPC.CallContext(ctx, &resp, "optimism_outputAtBlock", hexutil.Uint64(blockNumber)); err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch output at L2 block %d: %w", blockNumber, err)
	}
	preimage := make([]byte, 0, 4*common.HashLength)
	preimage = append(preimage, resp.Version.Bytes()...)
	preimage = append(preimage, resp.StateRoot.Bytes()...)
	preimage = append(preimage, resp.WithdrawalStorageRoot.Bytes()...)
	preimage = append(preimage, resp.BlockRef.Hash.Bytes()...)
	if crypto.Keccak256Hash(preimage) != resp.OutputRoot {
		return common.Hash{}, fmt.Errorf("output at L2 block %d does not commit to its own preimage", blockNumber)
	}
	f.outputsMu.Lock()
	f.outputs[resp.OutputRoot] = preimage
	f.outputsMu.Unlock()
	return resp.OutputRoot, nil
}

type safeHeadResponse struct {
	L1Block struct {
		Number hexutil.Uint64 `json:"number"`
		Hash   common.Hash    `json:"hash"`
	} `json:"l1Block"`
	SafeHead struct {
		Number hexutil.Uint64 `json:"number"`
		Hash   common.Hash    `json:"hash"`
	} `json:"safeHead"`
}

// SafeHeadAtL1Block returns the L2 block that was safe when the given L1
// block was the L1 head. Requires the rollup node to run with a safe-head
// database; without one, host.ErrSafeHeadNotAvailable is returned.
func (f *Fetcher) SafeHeadAtL1Block(ctx context.Context, l1BlockNumber uint64) (l1Block rollup.BlockID, safeHead rollup.BlockID, err error) {
	var resp safeHeadResponse
	if err := f.rollupRPC.CallContext(ctx, &resp, "optimism_safeHeadAtL1Block", hexutil.Uint64(l1BlockNumber)); err != nil {
		if isMethodNotFound(err) {
			return rollup.BlockID{}, rollup.BlockID{}, fmt.Errorf("%w: %v", host.ErrSafeHeadNotAvailable, err)
		}
		return rollup.BlockID{}, rollup.BlockID{}, fmt.Errorf("failed to fetch safe head at L1 block %d: %w", l1BlockNumber, err)
	}
	l1Block = rollup.BlockID{Hash: resp.L1Block.Hash, Number: uint64(resp.L1Block.Number)}
	safeHead = rollup.BlockID{Hash: resp.SafeHead.Hash, Number: uint64(resp.SafeHead.Number)}
	return l1Block, safeHead, nil
}

// L1BlockWhereSafe finds the lowest L1 block number at which the given L2
// block was part of the safe chain, by binary search over the rollup node's
// safe-head database.
func (f *Fetcher) L1BlockWhereSafe(ctx context.Context, l2Block uint64) (uint64, error) {
	head, err := f.L1HeadHeader(ctx)
	if err != nil {
		return 0, err
	}
	latestL1 := head.Number.Uint64()
	_, safeHead, err := f.SafeHeadAtL1Block(ctx, latestL1)
	if err != nil {
		return 0, err
	}
	if safeHead.Number < l2Block {
		return 0, fmt.Errorf("L2 block %d is not yet safe (safe head %d)", l2Block, safeHead.Number)
	}
	lo, hi := f.cfg.Genesis.L1.Number, latestL1
	for lo < hi {
		mid := lo + (hi-lo)/2
		_, safeHead, err := f.SafeHeadAtL1Block(ctx, mid)
		if err != nil {
			return 0, err
		}
		if safeHead.Number < l2Block {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// BatcherTransactions returns the calldata of every transaction in the given
// L1 block that was sent to the batch inbox by the rollup's batcher.
func (f *Fetcher) BatcherTransactions(ctx context.Context, l1BlockNumber uint64) ([][]byte, error) {
	block, err := f.l1.BlockByNumber(ctx, new(big.Int).SetUint64(l1BlockNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch L1 block %d: %w", l1BlockNumber, err)
	}
	var batcherAddr *common.Address
	if f.cfg.Genesis.SystemConfig != nil {
		batcherAddr = &f.cfg.Genesis.SystemConfig.BatcherAddr
	}
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(f.cfg.L1ChainID))
	var out [][]byte
	for _, tx := range block.Transactions() {
		if tx.To() == nil || *tx.To() != f.cfg.BatchInboxAddress {
			continue
		}
		if batcherAddr != nil {
			sender, err := types.Sender(signer, tx)
			if err != nil || sender != *batcherAddr {
				continue
			}
		}
		out = append(out, tx.Data())
	}
	return out, nil
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == -32601 {
		return true
	}
	return strings.Contains(err.Error(), "safe head db not enabled")
}
