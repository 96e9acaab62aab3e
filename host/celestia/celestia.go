package celestia

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/celo-org/op-succinct/boot"
	"github.com/celo-org/op-succinct/host"
	"github.com/celo-org/op-succinct/host/kvstore"
	"github.com/celo-org/op-succinct/host/prefetcher"
	"github.com/celo-org/op-succinct/host/single"
	"github.com/celo-org/op-succinct/preimage"
	"github.com/celo-org/op-succinct/witness"
)

// HintCelestiaBlob asks the host to make a DA blob available. The payload is
// the hex-encoded serialized blob pointer.
const HintCelestiaBlob = "celestia-blob"

type BlobHint BlobPointer

func (h BlobHint) Hint() string {
	pointer := BlobPointer(h)
	enc, err := pointer.MarshalBinary()
	if err != nil {
		panic(fmt.Errorf("failed to encode blob pointer hint: %w", err))
	}
	return HintCelestiaBlob + " " + hexutil.Encode(enc)
}

// Args holds the resolved inputs for one DA-backed witness run.
type Args struct {
	single.Args
}

func (a *Args) Clone() host.Args {
	c := *a
	return &c
}

// Host generates witnesses for rollups that post their batches to a separate
// DA network, anchored to L1 through the Blobstream bridge. L1 only carries
// blob pointers; finality and safe-head questions are additionally bounded by
// what the bridge has attested.
type Host struct {
	logger     log.Logger
	fetcher    host.ChainFetcher
	generator  witness.Generator
	blobstream BlobstreamReader
	blobs      BlobReader
	index      BlobIndex

	// eth answers the derivation-side safe-head question, which the DA bound
	// is applied on top of.
	eth *single.Host
}

var _ host.Host = (*Host)(nil)

func NewHost(logger log.Logger, f host.ChainFetcher, generator witness.Generator, blobstream BlobstreamReader, blobs BlobReader, index BlobIndex) *Host {
	return &Host{
		logger:     logger,
		fetcher:    f,
		generator:  generator,
		blobstream: blobstream,
		blobs:      blobs,
		index:      index,
		eth:        single.NewHost(logger, f, generator),
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
		Args: single.Args{
			StartBlockNumber: l2StartBlock,
			EndBlockNumber:   l2EndBlock,
			RollupConfig:     h.fetcher.RollupConfig(),
		},
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
		head, err := h.SafeL1Head(ctx, l2EndBlock, safeDBFallback)
		if err != nil {
			return nil, err
		}
		args.L1HeadHash = head
	}
	return args, nil
}

func (h *Host) StartServer(ctx context.Context, logger log.Logger, args host.Args, preimageChannel, hintChannel preimage.FileChannel) (*host.ServerTask, error) {
	cArgs, ok := args.(*Args)
	if !ok {
		return nil, fmt.Errorf("unexpected args type: %T", args)
	}
	kv := kvstore.NewMemKV()
	localSource := boot.NewLocalPreimageSource(cArgs.BootInfo())
	pre := &blobPrefetcher{
		logger: logger,
		inner:  prefetcher.NewPrefetcher(logger, h.fetcher, kv),
		blobs:  h.blobs,
		kv:     kv,
	}
	task := host.StartServerTask(ctx, func(ctx context.Context) error {
		splitter := host.NewPreimageSourceSplitter(localSource.Get, func(key common.Hash) ([]byte, error) {
			return pre.GetPreimage(ctx, key)
		})
		return host.RunPreimageServer(ctx, logger, preimageChannel, hintChannel, preimage.WithVerification(splitter.Get), pre.Hint)
	}, preimageChannel, hintChannel)
	return task, nil
}

// FinalizedL2BlockNumber returns the highest L2 block that is both finalized
// on the L2 chain and covered by a bridge attestation, or nil when no block
// past latestProposedBlockNumber qualifies yet. The DA bound is authoritative:
// the L2 chain advancing further never widens the provable range.
func (h *Host) FinalizedL2BlockNumber(ctx context.Context, latestProposedBlockNumber uint64) (*uint64, error) {
	attested, err := h.blobstream.LatestAttestedHeight(ctx)
	if err != nil {
		return nil, err
	}
	if attested == 0 {
		// Bridge not initialized yet.
		return nil, nil
	}
	finalized, err := h.fetcher.FinalizedL2BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	if finalized <= latestProposedBlockNumber {
		return nil, nil
	}

	covered := func(l2Block uint64) (bool, error) {
		pointer, err := h.index.PointerForL2Block(ctx, l2Block)
		if errors.Is(err, ErrPointerNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return pointer.BlockHeight <= attested, nil
	}

	lowOK, err := covered(latestProposedBlockNumber + 1)
	if err != nil {
		return nil, err
	}
	if !lowOK {
		return nil, nil
	}
	// Highest covered block in [latestProposed+1, finalized]. Pointer DA
	// heights are monotonic in L2 block number, so binary search applies.
	lo, hi := latestProposedBlockNumber+1, finalized
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ok, err := covered(mid)
		if err != nil {
			return nil, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return &lo, nil
}

// SafeL1Head picks an L1 head that both makes the claimed L2 block derivable
// and post-dates the bridge attestation of the blob carrying its batch data.
// Without the second bound a third party replaying the witness could not
// verify the batch data against the DA bridge.
func (h *Host) SafeL1Head(ctx context.Context, l2EndBlock uint64, safeDBFallback bool) (common.Hash, error) {
	pointer, err := h.index.PointerForL2Block(ctx, l2EndBlock)
	if err != nil {
		return common.Hash{}, err
	}
	attested, err := h.blobstream.LatestAttestedHeight(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if pointer.BlockHeight > attested {
		return common.Hash{}, fmt.Errorf("blob at DA height %d not yet attested (latest attested %d)", pointer.BlockHeight, attested)
	}
	rng, err := h.blobstream.CommitmentForHeight(ctx, pointer.BlockHeight)
	if err != nil {
		return common.Hash{}, err
	}

	ethHead, err := h.eth.SafeL1Head(ctx, l2EndBlock, safeDBFallback)
	if err != nil {
		return common.Hash{}, err
	}
	// The derivation-based head already post-dates the batcher tx carrying
	// the pointer. Only when the attestation landed later does the bound move.
	headNumber, err := h.l1NumberOf(ctx, ethHead)
	if err != nil {
		return common.Hash{}, err
	}
	if rng.L1Block.Number <= headNumber {
		return ethHead, nil
	}
	h.logger.Debug("Raising L1 head to attestation block", "derivation_head", headNumber, "attestation_block", rng.L1Block.Number)
	header, err := h.fetcher.L1HeaderByNumber(ctx, rng.L1Block.Number)
	if err != nil {
		return common.Hash{}, err
	}
	return header.Hash(), nil
}

func (h *Host) l1NumberOf(ctx context.Context, hash common.Hash) (uint64, error) {
	header, err := h.fetcher.L1HeaderByHash(ctx, hash)
	if err != nil {
		return 0, err
	}
	return header.Number.Uint64(), nil
}

// blobPrefetcher extends the chain prefetcher with DA blob hints. Blob
// retrieval stays lazy: the hint is remembered and acted on only when a
// preimage request misses the store.
type blobPrefetcher struct {
	logger      log.Logger
	inner       *prefetcher.Prefetcher
	blobs       BlobReader
	kv          kvstore.KV
	lastPointer *BlobPointer
}

func (p *blobPrefetcher) Hint(hint string) error {
	kind, payload, found := strings.Cut(hint, " ")
	if !found || kind != HintCelestiaBlob {
		return p.inner.Hint(hint)
	}
	enc, err := hexutil.Decode(payload)
	if err != nil {
		return fmt.Errorf("invalid blob pointer hint: %w", err)
	}
	var pointer BlobPointer
	if err := pointer.UnmarshalBinary(enc); err != nil {
		return fmt.Errorf("invalid blob pointer hint: %w", err)
	}
	p.lastPointer = &pointer
	return nil
}

func (p *blobPrefetcher) GetPreimage(ctx context.Context, key common.Hash) ([]byte, error) {
	if p.lastPointer != nil {
		pointerKey, err := p.lastPointer.PreimageKey()
		if err != nil {
			return nil, err
		}
		if pointerKey == key {
			if value, err := p.kv.Get(key); err == nil {
				return value, nil
			}
			data, err := p.blobs.Blob(ctx, p.lastPointer)
			if err != nil {
				return nil, fmt.Errorf("blob prefetch failed: %w", err)
			}
			if err := p.kv.Put(key, data); err != nil {
				return nil, err
			}
			return data, nil
		}
	}
	return p.inner.GetPreimage(ctx, key)
}
