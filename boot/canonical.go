package boot

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/celo-org/op-succinct/rollup"
)

// CanonicalRollupConfig renders the rollup config as the canonical pretty-printed
// JSON document whose hash is committed to on-chain. The document is a wire
// format: key set, key order (lexicographic), hex-string widths and the packed
// field layouts below are all part of the contract with the verifier and must
// not change without a coordinated upgrade.
//
// The cel2_time fork is deliberately excluded from the document: it is not yet
// part of the on-chain contract even though the in-memory config carries it.
func CanonicalRollupConfig(cfg *rollup.Config) []byte {
	doc := map[string]any{
		"genesis": map[string]any{
			"l1": map[string]any{
				"hash":   cfg.Genesis.L1.Hash.Hex(),
				"number": cfg.Genesis.L1.Number,
			},
			"l2": map[string]any{
				"hash":   cfg.Genesis.L2.Hash.Hex(),
				"number": cfg.Genesis.L2.Number,
			},
			"l2_time":       cfg.Genesis.L2Time,
			"system_config": canonicalSystemConfig(cfg.Genesis.SystemConfig),
		},
		"block_time":                cfg.BlockTime,
		"max_sequencer_drift":       cfg.MaxSequencerDrift,
		"seq_window_size":           cfg.SeqWindowSize,
		"channel_timeout":           cfg.ChannelTimeout,
		"l1_chain_id":               cfg.L1ChainID,
		"l2_chain_id":               cfg.L2ChainID,
		"regolith_time":             timeOrZero(cfg.RegolithTime),
		"canyon_time":               timeOrZero(cfg.CanyonTime),
		"delta_time":                timeOrZero(cfg.DeltaTime),
		"ecotone_time":              timeOrZero(cfg.EcotoneTime),
		"fjord_time":                timeOrZero(cfg.FjordTime),
		"granite_time":              timeOrZero(cfg.GraniteTime),
		"holocene_time":             timeOrZero(cfg.HoloceneTime),
		"isthmus_time":              timeOrZero(cfg.IsthmusTime),
		"batch_inbox_address":       addressHex(cfg.BatchInboxAddress),
		"deposit_contract_address":  addressHex(cfg.DepositContractAddress),
		"l1_system_config_address":  addressHex(cfg.L1SystemConfigAddress),
		"protocol_versions_address": addressHex(cfg.ProtocolVersionsAddress),
		"chain_op_config": map[string]any{
			"eip1559Elasticity":        cfg.ChainOpConfig.EIP1559Elasticity,
			"eip1559Denominator":       cfg.ChainOpConfig.EIP1559Denominator,
			"eip1559DenominatorCanyon": cfg.ChainOpConfig.EIP1559DenominatorCanyon,
		},
		"alt_da": canonicalAltDAConfig(cfg.AltDAConfig),
	}
	// Keys of JSON objects are sorted on marshaling, matching the canonical
	// (lexicographic) ordering of the reference encoder.
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		panic(fmt.Errorf("canonical rollup config is not serializable: %w", err))
	}
	return out
}

func canonicalSystemConfig(sc *rollup.SystemConfig) any {
	if sc == nil {
		return nil
	}
	return map[string]any{
		"batcherAddr": addressHex(sc.BatcherAddr),
		"overhead":    sc.Overhead.Hex(),
		"scalar":      sc.Scalar.Hex(),
		"gasLimit":    sc.GasLimit,
		"eip1559Params": EncodeEIP1559Params(
			derefU32(sc.EIP1559Denominator), derefU32(sc.EIP1559Elasticity)),
		"operatorFeeParams": EncodeOperatorFeeParams(
			derefU32(sc.OperatorFeeScalar), derefU64(sc.OperatorFeeConstant)),
	}
}

func canonicalAltDAConfig(da *rollup.AltDAConfig) any {
	if da == nil {
		return nil
	}
	var challengeAddr any
	if da.DAChallengeAddress != nil {
		challengeAddr = addressHex(*da.DAChallengeAddress)
	}
	var commitmentType any
	if da.DACommitmentType != "" {
		commitmentType = da.DACommitmentType
	}
	return map[string]any{
		"da_challenge_contract_address": challengeAddr,
		"da_commitment_type":            commitmentType,
		"da_challenge_window":           da.DAChallengeWindow,
		"da_resolve_window":             da.DAResolveWindow,
	}
}

// EncodeEIP1559Params packs the Holocene EIP-1559 parameters into their
// canonical hex string: the denominator occupies the low byte and the
// elasticity the next byte, rendered as a 64-bit word (16 hex digits).
func EncodeEIP1559Params(denominator, elasticity uint32) string {
	packed := uint64(denominator) | uint64(elasticity)<<8
	return fmt.Sprintf("0x%016x", packed)
}

// EncodeOperatorFeeParams packs the Isthmus operator fee parameters into their
// canonical hex string: the scalar occupies the low 64 bits and the constant
// the next 64 bits, rendered as a 256-bit word (64 hex digits).
func EncodeOperatorFeeParams(scalar uint32, constant uint64) string {
	packed := new(uint256.Int).Lsh(uint256.NewInt(constant), 64)
	packed.Or(packed, uint256.NewInt(uint64(scalar)))
	return fmt.Sprintf("0x%064x", packed.ToBig())
}

// addressHex renders an address without fixed-width padding, matching the
// canonical document's minimal-digit address encoding.
func addressHex(addr common.Address) string {
	return fmt.Sprintf("0x%x", new(big.Int).SetBytes(addr.Bytes()))
}

func timeOrZero(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefU32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}

func derefU64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
