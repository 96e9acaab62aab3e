package single

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/celo-org/op-succinct/boot"
	"github.com/celo-org/op-succinct/host"
	"github.com/celo-org/op-succinct/host/kvstore"
	"github.com/celo-org/op-succinct/host/prefetcher"
	"github.com/celo-org/op-succinct/preimage"
	"github.com/celo-org/op-succinct/rollup"
	"github.com/celo-org/op-succinct/witness"
)

const (
	// safeHeadBufferBlocks is added on top of the L1 block where the claimed
	// L2 block became safe, so batches that landed right at the boundary are
	// still within the derivation window.
	safeHeadBufferBlocks = 20

	// maxBatchPostDelay bounds how long after an L2 block's timestamp its
	// batch is expected to land on L1. Used only on the fallback path when no
	// safe-head database is available.
	maxBatchPostDelay = 3600
)

// Args holds the resolved inputs for one single-chain witness run.
type Args struct {
	L1HeadHash        common.Hash
	AgreedOutputRoot  common.Hash
	ClaimedOutputRoot common.Hash
	StartBlockNumber  uint64
	EndBlockNumber    uint64
	RollupConfig      *rollup.Config

	// SafeDBFallbackUsed records that the L1 head was estimated from
	// timestamps rather than read from the safe-head database.
	SafeDBFallbackUsed bool
}

var _ host.Args = (*Args)(nil)

func (a *Args) Clone() host.Args {
	c := *a
	return &c
}

func (a *Args) L1Head() common.Hash {
	return a.L1HeadHash
}

func (a *Args) L2StartBlock() uint64 {
	return a.StartBlockNumber
}

func (a *Args) L2EndBlock() uint64 {
	return a.EndBlockNumber
}

func (a *Args) BootInfo() *boot.BootInfo {
	return &boot.BootInfo{
		L1Head:             a.L1HeadHash,
		L2OutputRoot:       a.AgreedOutputRoot,
		L2Claim:            a.ClaimedOutputRoot,
		L2ClaimBlockNumber: a.EndBlockNumber,
		RollupConfig:       a.RollupConfig,
	}
}

// Host generates witnesses for rollups that post their batches directly to
// L1 calldata or blobs.
type Host struct {
	logger    log.Logger
	fetcher   host.ChainFetcher
	generator witness.Generator
}

var _ host.Host = (*Host)(nil)

func NewHost(logger log.Logger, f host.ChainFetcher, generator witness.Generator) *Host {
	return &Host{
		logger:    logger,
		fetcher:   f,
		generator: generator,
	}
}

func (h *Host) WitnessGenerator() witness.Generator {
	return h.generator
}

func (h *Host) Fetch(ctx context.Context, l2StartBlock, l2EndBlock uint64, l1HeadHash *common.Hash, safeDBFallback bool) (host.Args, error) {
	if l2EndBlock <= l2StartBlock {
		return nil, fmt.Errorf("claimed block %d must be after agreed block %d", l2EndBlock, l2StartBlock)
	}
	args := &Args{
		StartBlockNumber: l2StartBlock,
		EndBlockNumber:   l2EndBlock,
		RollupConfig:     h.fetcher.RollupConfig(),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		root, err := h.fetcher.L2OutputRoot(gCtx, l2StartBlock)
		if err != nil {
			return fmt.Errorf("agreed output root: %w", err)
		}
		args.AgreedOutputRoot = root
		return nil
	})
	g.Go(func() error {
		root, err := h.fetcher.L2OutputRoot(gCtx, l2EndBlock)
		if err != nil {
			return fmt.Errorf("claimed output root: %w", err)
		}
		args.ClaimedOutputRoot = root
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if l1HeadHash != nil {
		args.L1HeadHash = *l1HeadHash
	} else {
		head, usedFallback, err := h.safeL1Head(ctx, l2EndBlock, safeDBFallback)
		if err != nil {
			return nil, err
		}
		args.L1HeadHash = head
		args.SafeDBFallbackUsed = usedFallback
	}
	return args, nil
}

func (h *Host) StartServer(ctx context.Context, logger log.Logger, args host.Args, preimageChannel, hintChannel preimage.FileChannel) (*host.ServerTask, error) {
	sArgs, ok := args.(*Args)
	if !ok {
		return nil, fmt.Errorf("unexpected args type: %T", args)
	}
	kv := kvstore.NewMemKV()
	localSource := boot.NewLocalPreimageSource(sArgs.BootInfo())
	pre := prefetcher.NewPrefetcher(logger, h.fetcher, kv)
	task := host.StartServerTask(ctx, func(ctx context.Context) error {
		splitter := host.NewPreimageSourceSplitter(localSource.Get, func(key common.Hash) ([]byte, error) {
			return pre.GetPreimage(ctx, key)
		})
		return host.RunPreimageServer(ctx, logger, preimageChannel, hintChannel, preimage.WithVerification(splitter.Get), pre.Hint)
	}, preimageChannel, hintChannel)
	return task, nil
}

// FinalizedL2BlockNumber returns the finalized L2 block number, or nil when
// the chain has not finalized past the latest proposed block.
func (h *Host) FinalizedL2BlockNumber(ctx context.Context, latestProposedBlockNumber uint64) (*uint64, error) {
	finalized, err := h.fetcher.FinalizedL2BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	if finalized <= latestProposedBlockNumber {
		return nil, nil
	}
	return &finalized, nil
}

func (h *Host) SafeL1Head(ctx context.Context, l2EndBlock uint64, safeDBFallback bool) (common.Hash, error) {
	head, _, err := h.safeL1Head(ctx, l2EndBlock, safeDBFallback)
	return head, err
}

func (h *Host) safeL1Head(ctx context.Context, l2EndBlock uint64, safeDBFallback bool) (common.Hash, bool, error) {
	l1Head, err := h.fetcher.L1HeadHeader(ctx)
	if err != nil {
		return common.Hash{}, false, err
	}
	latestL1 := l1Head.Number.Uint64()

	safeL1Block, err := h.fetcher.L1BlockWhereSafe(ctx, l2EndBlock)
	if errors.Is(err, host.ErrSafeHeadNotAvailable) && safeDBFallback {
		h.logger.Warn("Safe head database unavailable, estimating L1 head from timestamps", "l2_end", l2EndBlock)
		target := h.fetcher.RollupConfig().TimestampForBlock(l2EndBlock) + maxBatchPostDelay
		id, err := h.fetcher.L1BlockAtOrAfterTimestamp(ctx, target)
		if err != nil {
			return common.Hash{}, false, err
		}
		return id.Hash, true, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}

	target := safeL1Block + safeHeadBufferBlocks
	if target > latestL1 {
		target = latestL1
	}
	header, err := h.fetcher.L1HeaderByNumber(ctx, target)
	if err != nil {
		return common.Hash{}, false, err
	}
	return header.Hash(), false, nil
}
