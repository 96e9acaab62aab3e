package celestia

import (
	"context"
	"errors"
	"fmt"

	blobstreamx "github.com/succinctlabs/blobstreamx/bindings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celo-org/op-succinct/rollup"
)

// ErrCommitmentNotFound is returned when no stored data commitment covers
// the requested DA block height.
var ErrCommitmentNotFound = errors.New("no data commitment covers height")

// CommitmentRange describes one DataCommitmentStored attestation: the range
// of DA heights it covers and the L1 block the attestation landed in.
// StartBlock is inclusive, EndBlock exclusive.
type CommitmentRange struct {
	ProofNonce     uint64
	StartBlock     uint64
	EndBlock       uint64
	DataCommitment [32]byte
	L1Block        rollup.BlockID
}

// Covers reports whether the commitment attests the given DA height.
func (r *CommitmentRange) Covers(height uint64) bool {
	return height >= r.StartBlock && r.EndBlock > height
}

// BlobstreamReader answers finality questions against the DA bridge contract
// on L1.
type BlobstreamReader interface {
	// LatestAttestedHeight is the highest DA block height covered by a
	// stored commitment, or 0 when the bridge has no attestations yet.
	LatestAttestedHeight(ctx context.Context) (uint64, error)
	// CommitmentForHeight finds the stored commitment covering the given DA
	// height.
	CommitmentForHeight(ctx context.Context, height uint64) (*CommitmentRange, error)
}

// BlobstreamClient reads the Blobstream bridge contract.
type BlobstreamClient struct {
	logger log.Logger
	bridge *blobstreamx.BlobstreamX
	// deployBlock caps how far back event scans go.
	deployBlock uint64
}

var _ BlobstreamReader = (*BlobstreamClient)(nil)

func NewBlobstreamClient(logger log.Logger, bridgeAddress common.Address, backend bind.ContractBackend, deployBlock uint64) (*BlobstreamClient, error) {
	bridge, err := blobstreamx.NewBlobstreamX(bridgeAddress, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to bind Blobstream contract %s: %w", bridgeAddress, err)
	}
	return &BlobstreamClient{
		logger:      logger,
		bridge:      bridge,
		deployBlock: deployBlock,
	}, nil
}

func (c *BlobstreamClient) LatestAttestedHeight(ctx context.Context) (uint64, error) {
	// latestBlock is the end of the last attested range, which is exclusive.
	latest, err := c.bridge.LatestBlock(&bind.CallOpts{Context: ctx})
	if err != nil {
		return 0, fmt.Errorf("failed to read latest attested block: %w", err)
	}
	if latest == 0 {
		return 0, nil
	}
	return latest - 1, nil
}

func (c *BlobstreamClient) CommitmentForHeight(ctx context.Context, height uint64) (*CommitmentRange, error) {
	iter, err := c.bridge.FilterDataCommitmentStored(&bind.FilterOpts{
		Context: ctx,
		Start:   c.deployBlock,
	}, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to filter data commitment events: %w", err)
	}
	defer iter.Close()
	for iter.Next() {
		event := iter.Event
		rng := &CommitmentRange{
			ProofNonce:     event.ProofNonce.Uint64(),
			StartBlock:     event.StartBlock,
			EndBlock:       event.EndBlock,
			DataCommitment: event.DataCommitment,
			L1Block: rollup.BlockID{
				Hash:   event.Raw.BlockHash,
				Number: event.Raw.BlockNumber,
			},
		}
		if rng.Covers(height) {
			c.logger.Debug("Found covering data commitment", "height", height, "proof_nonce", rng.ProofNonce, "start", rng.StartBlock, "end", rng.EndBlock)
			return rng, nil
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate data commitment events: %w", err)
	}
	return nil, fmt.Errorf("%w: %d", ErrCommitmentNotFound, height)
}
