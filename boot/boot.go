package boot

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/celo-org/op-succinct/preimage"
	"github.com/celo-org/op-succinct/rollup"
)

// ErrUnknownLocalKey is returned when a local-index preimage request does not
// match any of the boot inputs.
var ErrUnknownLocalKey = errors.New("unknown local preimage key")

// Local index keys for the boot inputs served over the preimage oracle.
const (
	L1HeadLocalIndex preimage.LocalIndexKey = iota + 1
	L2OutputRootLocalIndex
	L2ClaimLocalIndex
	L2ClaimBlockNumberLocalIndex
	RollupConfigLocalIndex
)

// AggregationOutputsSize is the ABI-encoded size of AggregationOutputs:
// 6 words of 32 bytes.
const AggregationOutputsSize = 6 * 32

// BootInfo is the set of facts the witness attests to, as assembled by the
// proof-input pipeline. The values are assumed to be validated upstream.
type BootInfo struct {
	L1Head             common.Hash
	L2OutputRoot       common.Hash
	L2Claim            common.Hash
	L2ClaimBlockNumber uint64
	RollupConfig       *rollup.Config
}

// AggregationOutputs is the fixed-layout public-input structure the on-chain
// verifier decodes: l1 head, pre-root, post-root, claimed block number
// (right-aligned in its word), the rollup config hash, and the commitment to
// the range program verification key, in that order. The layout is a wire
// contract and must match the verifier byte for byte.
type AggregationOutputs struct {
	L1Head              common.Hash
	L2PreRoot           common.Hash
	L2PostRoot          common.Hash
	L2BlockNumber       uint64
	RollupConfigHash    common.Hash
	RangeVkeyCommitment common.Hash
}

var aggregationOutputsArgs = abi.Arguments{
	{Name: "l1Head", Type: mustNewType("bytes32")},
	{Name: "l2PreRoot", Type: mustNewType("bytes32")},
	{Name: "l2PostRoot", Type: mustNewType("bytes32")},
	{Name: "l2BlockNumber", Type: mustNewType("uint256")},
	{Name: "rollupConfigHash", Type: mustNewType("bytes32")},
	{Name: "rangeVkeyCommitment", Type: mustNewType("bytes32")},
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// NewAggregationOutputs assembles the public inputs from the boot facts,
// hashing the rollup config once. Pure and deterministic; malformed input is a
// programmer error, not a recoverable condition.
func NewAggregationOutputs(info *BootInfo, rangeVkeyCommitment common.Hash) AggregationOutputs {
	return AggregationOutputs{
		L1Head:              info.L1Head,
		L2PreRoot:           info.L2OutputRoot,
		L2PostRoot:          info.L2Claim,
		L2BlockNumber:       info.L2ClaimBlockNumber,
		RollupConfigHash:    HashRollupConfig(info.RollupConfig),
		RangeVkeyCommitment: rangeVkeyCommitment,
	}
}

// Marshal ABI-encodes the outputs into their AggregationOutputsSize-byte form.
func (a *AggregationOutputs) Marshal() ([]byte, error) {
	return aggregationOutputsArgs.Pack(
		a.L1Head,
		a.L2PreRoot,
		a.L2PostRoot,
		new(big.Int).SetUint64(a.L2BlockNumber),
		a.RollupConfigHash,
		a.RangeVkeyCommitment,
	)
}

// LocalPreimageSource serves the boot inputs from local index keys.
type LocalPreimageSource struct {
	info *BootInfo
}

func NewLocalPreimageSource(info *BootInfo) *LocalPreimageSource {
	return &LocalPreimageSource{info: info}
}

var (
	l1HeadKey             = L1HeadLocalIndex.PreimageKey()
	l2OutputRootKey       = L2OutputRootLocalIndex.PreimageKey()
	l2ClaimKey            = L2ClaimLocalIndex.PreimageKey()
	l2ClaimBlockNumberKey = L2ClaimBlockNumberLocalIndex.PreimageKey()
	rollupConfigKey       = RollupConfigLocalIndex.PreimageKey()
)

func (s *LocalPreimageSource) Get(key common.Hash) ([]byte, error) {
	switch key {
	case l1HeadKey:
		return s.info.L1Head.Bytes(), nil
	case l2OutputRootKey:
		return s.info.L2OutputRoot.Bytes(), nil
	case l2ClaimKey:
		return s.info.L2Claim.Bytes(), nil
	case l2ClaimBlockNumberKey:
		return binary.BigEndian.AppendUint64(nil, s.info.L2ClaimBlockNumber), nil
	case rollupConfigKey:
		return json.Marshal(s.info.RollupConfig)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocalKey, key)
	}
}
