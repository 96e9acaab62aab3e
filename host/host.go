package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celo-org/op-succinct/host/prefetcher"
	"github.com/celo-org/op-succinct/preimage"
	"github.com/celo-org/op-succinct/rollup"
	"github.com/celo-org/op-succinct/witness"
)

// ErrSafeHeadNotAvailable is returned when the rollup node does not expose a
// safe-head database and the caller did not allow the fallback estimation.
var ErrSafeHeadNotAvailable = errors.New("safe head database not available")

// ChainFetcher is the chain data access the backends are built on: the
// queries needed to assemble run inputs, plus the raw preimage payloads the
// prefetcher serves.
type ChainFetcher interface {
	prefetcher.ChainDataSource

	RollupConfig() *rollup.Config
	L1HeadHeader(ctx context.Context) (*types.Header, error)
	L1HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
	L1HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	L1BlockWhereSafe(ctx context.Context, l2Block uint64) (uint64, error)
	L1BlockAtOrAfterTimestamp(ctx context.Context, timestamp uint64) (rollup.BlockID, error)
	BatcherTransactions(ctx context.Context, l1BlockNumber uint64) ([][]byte, error)
	FinalizedL2BlockNumber(ctx context.Context) (uint64, error)
	L2OutputRoot(ctx context.Context, blockNumber uint64) (common.Hash, error)
}

// Args is the fully assembled input set for one witness-generation run. It is
// immutable once fetched; Clone produces an independent copy so a run can be
// retried with a modified variant without touching the original.
type Args interface {
	Clone() Args
	// L1Head is the L1 block hash the derivation is bounded by. Fetch
	// always resolves a head, either the caller's override or one derived
	// via SafeL1Head, so there is no unset case to represent.
	L1Head() common.Hash
	// L2StartBlock is the block number the agreed output root commits to.
	L2StartBlock() uint64
	// L2EndBlock is the block number of the claimed output root.
	L2EndBlock() uint64
}

// Host is a witness-generation backend for one DA flavor. Implementations
// assemble run inputs from chain data and serve the preimage protocol while
// the witness generator drives the client program.
type Host interface {
	// WitnessGenerator returns the generator used to run the client program.
	WitnessGenerator() witness.Generator

	// Fetch assembles the inputs for proving the block range (l2StartBlock,
	// l2EndBlock]. If l1HeadHash is nil an appropriate L1 head is derived via
	// SafeL1Head, with safeDBFallback controlling whether a timestamp-based
	// estimate may stand in for a missing safe-head database.
	Fetch(ctx context.Context, l2StartBlock, l2EndBlock uint64, l1HeadHash *common.Hash, safeDBFallback bool) (Args, error)

	// StartServer launches the preimage server for the given args on the
	// host halves of the channels. The returned task keeps running until
	// aborted or until the client halves are closed.
	StartServer(ctx context.Context, logger log.Logger, args Args, preimageChannel, hintChannel preimage.FileChannel) (*ServerTask, error)

	// FinalizedL2BlockNumber returns the highest L2 block number that is
	// safe to propose, bounded by latestProposedBlockNumber, or nil when no
	// new block is provable yet.
	FinalizedL2BlockNumber(ctx context.Context, latestProposedBlockNumber uint64) (*uint64, error)

	// SafeL1Head returns an L1 block hash from which the batches covering
	// all L2 blocks up to and including l2EndBlock are derivable.
	SafeL1Head(ctx context.Context, l2EndBlock uint64, safeDBFallback bool) (common.Hash, error)
}

// Run executes one witness-generation run: it allocates the preimage and hint
// channels, starts the backend's preimage server, and drives the witness
// generator against the client halves. The server is force-stopped when the
// generator returns, successfully or not, so a failed run never leaks the
// server goroutines or the underlying pipes.
func Run(ctx context.Context, logger log.Logger, h Host, args Args) (*witness.Data, error) {
	pHost, pClient, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to create preimage channel: %w", err)
	}
	hHost, hClient, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		pHost.Close()
		pClient.Close()
		return nil, fmt.Errorf("failed to create hint channel: %w", err)
	}

	server, err := h.StartServer(ctx, logger, args, pHost, hHost)
	if err != nil {
		pHost.Close()
		pClient.Close()
		hHost.Close()
		hClient.Close()
		return nil, fmt.Errorf("failed to start preimage server: %w", err)
	}
	// Deferred in reverse order: the client halves close first, letting the
	// server loops drain to EOF, then Abort force-closes whatever is left and
	// waits for the server goroutines to stop.
	defer server.Abort(logger)
	defer pClient.Close()
	defer hClient.Close()

	logger.Info("Starting witness generation", "l2_start", args.L2StartBlock(), "l2_end", args.L2EndBlock(), "l1_head", args.L1Head())
	data, err := h.WitnessGenerator().Run(ctx, pClient, hClient)
	if err != nil {
		return nil, fmt.Errorf("witness generation failed: %w", err)
	}
	return data, nil
}
