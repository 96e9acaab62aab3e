package rollup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrBlockTimeZero                 = errors.New("block time cannot be 0")
	ErrMissingChannelTimeout         = errors.New("channel timeout must be set, this should cover at least a L1 block time")
	ErrInvalidSeqWindowSize          = errors.New("sequencing window size must at least be 2")
	ErrMissingGenesisL1Hash          = errors.New("genesis L1 hash cannot be empty")
	ErrMissingGenesisL2Hash          = errors.New("genesis L2 hash cannot be empty")
	ErrGenesisHashesSame             = errors.New("L1 and L2 genesis cannot be the same")
	ErrMissingGenesisL2Time          = errors.New("missing L2 genesis time")
	ErrMissingBatchInboxAddress      = errors.New("missing batch inbox address")
	ErrMissingDepositContractAddress = errors.New("missing deposit contract address")
	ErrMissingL1ChainID              = errors.New("L1 chain ID must not be 0")
	ErrMissingL2ChainID              = errors.New("L2 chain ID must not be 0")
	ErrChainIDsSame                  = errors.New("L1 and L2 chain IDs must be different")
)

// BlockID identifies a block by hash and number.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

// SystemConfig is the initial system configuration snapshot embedded in the
// genesis of the rollup config. Later values are derived from L1 logs.
type SystemConfig struct {
	// BatcherAddr is the account submitting batches to the batch inbox.
	BatcherAddr common.Address `json:"batcherAddr"`
	// Overhead identifies the L1 fee overhead, pre-Ecotone.
	Overhead common.Hash `json:"overhead"`
	// Scalar identifies the L1 fee scalar.
	Scalar common.Hash `json:"scalar"`
	// GasLimit identifies the L2 block gas limit.
	GasLimit uint64 `json:"gasLimit"`
	// EIP-1559 parameters, active post-Holocene. Nil means "not set",
	// which canonicalizes to 0.
	EIP1559Denominator *uint32 `json:"eip1559Denominator,omitempty"`
	EIP1559Elasticity  *uint32 `json:"eip1559Elasticity,omitempty"`
	// Operator fee parameters, active post-Isthmus. Nil means "not set",
	// which canonicalizes to 0.
	OperatorFeeScalar   *uint32 `json:"operatorFeeScalar,omitempty"`
	OperatorFeeConstant *uint64 `json:"operatorFeeConstant,omitempty"`
}

// Genesis anchors the rollup to its L1 and L2 starting points.
type Genesis struct {
	// The L1 block that the rollup starts *after* (no derived transactions)
	L1 BlockID `json:"l1"`
	// The L2 block the rollup starts from (no transactions, pre-configured state)
	L2 BlockID `json:"l2"`
	// Timestamp of the L2 genesis block
	L2Time uint64 `json:"l2_time"`
	// Initial system configuration values. The L2 genesis block may not include
	// transactions, and thus cannot encode the config values, unlike later L2 blocks.
	SystemConfig *SystemConfig `json:"system_config,omitempty"`
}

// ChainOpConfig holds the EIP-1559 base fee parameters of the L2 chain.
type ChainOpConfig struct {
	EIP1559Elasticity        uint64 `json:"eip1559Elasticity"`
	EIP1559Denominator       uint64 `json:"eip1559Denominator"`
	EIP1559DenominatorCanyon uint64 `json:"eip1559DenominatorCanyon"`
}

// AltDAConfig configures the alternative data-availability mode.
type AltDAConfig struct {
	// L1 DataAvailabilityChallenge contract proxy address
	DAChallengeAddress *common.Address `json:"da_challenge_contract_address,omitempty"`
	// CommitmentType specifies which commitment type can be used.
	DACommitmentType string `json:"da_commitment_type"`
	// DA challenge window value set on the DAC contract.
	DAChallengeWindow uint64 `json:"da_challenge_window"`
	// DA resolve window value set on the DAC contract.
	DAResolveWindow uint64 `json:"da_resolve_window"`
}

// Config is the read-only description of a rollup deployment. It is loaded once
// per run and shared freely; nothing mutates it after construction.
type Config struct {
	// Genesis anchor point of the rollup
	Genesis Genesis `json:"genesis"`
	// Seconds per L2 block
	BlockTime uint64 `json:"block_time"`
	// Sequencer batches may not be more than MaxSequencerDrift seconds after
	// the L1 timestamp of their L1 origin time.
	MaxSequencerDrift uint64 `json:"max_sequencer_drift"`
	// Number of epochs (L1 blocks) per sequencing window, including the epoch
	// L1 origin block itself
	SeqWindowSize uint64 `json:"seq_window_size"`
	// Number of L1 blocks between when a channel can be opened and when it must
	// be closed by
	ChannelTimeout uint64 `json:"channel_timeout"`
	// Required to verify L1 signatures
	L1ChainID uint64 `json:"l1_chain_id"`
	// Required to identify the L2 network and create p2p signatures unique for
	// this chain
	L2ChainID uint64 `json:"l2_chain_id"`

	// Hard-fork activation timestamps. Nil means the fork is not yet active,
	// which is equivalent to an explicit 0 in the canonical form.
	RegolithTime *uint64 `json:"regolith_time,omitempty"`
	CanyonTime   *uint64 `json:"canyon_time,omitempty"`
	DeltaTime    *uint64 `json:"delta_time,omitempty"`
	EcotoneTime  *uint64 `json:"ecotone_time,omitempty"`
	FjordTime    *uint64 `json:"fjord_time,omitempty"`
	GraniteTime  *uint64 `json:"granite_time,omitempty"`
	HoloceneTime *uint64 `json:"holocene_time,omitempty"`
	IsthmusTime  *uint64 `json:"isthmus_time,omitempty"`
	// Cel2Time is tracked in the config but is not part of the hashed
	// canonical form. See boot.CanonicalRollupConfig.
	Cel2Time *uint64 `json:"cel2_time,omitempty"`

	// L1 address that batches are sent to
	BatchInboxAddress common.Address `json:"batch_inbox_address"`
	// L1 deposit contract address
	DepositContractAddress common.Address `json:"deposit_contract_address"`
	// L1 system config address
	L1SystemConfigAddress common.Address `json:"l1_system_config_address"`
	// L1 address that declares the protocol versions
	ProtocolVersionsAddress common.Address `json:"protocol_versions_address"`

	// EIP-1559 base fee parameters of the L2 chain
	ChainOpConfig ChainOpConfig `json:"chain_op_config"`

	// AltDAConfig is nil when the chain posts data directly to L1.
	AltDAConfig *AltDAConfig `json:"alt_da,omitempty"`
}

// Check verifies that the rollup configuration is complete enough to be used.
func (cfg *Config) Check() error {
	if cfg.BlockTime == 0 {
		return ErrBlockTimeZero
	}
	if cfg.ChannelTimeout == 0 {
		return ErrMissingChannelTimeout
	}
	if cfg.SeqWindowSize < 2 {
		return ErrInvalidSeqWindowSize
	}
	if cfg.Genesis.L1.Hash == (common.Hash{}) {
		return ErrMissingGenesisL1Hash
	}
	if cfg.Genesis.L2.Hash == (common.Hash{}) {
		return ErrMissingGenesisL2Hash
	}
	if cfg.Genesis.L2.Hash == cfg.Genesis.L1.Hash {
		return ErrGenesisHashesSame
	}
	if cfg.Genesis.L2Time == 0 {
		return ErrMissingGenesisL2Time
	}
	if cfg.BatchInboxAddress == (common.Address{}) {
		return ErrMissingBatchInboxAddress
	}
	if cfg.DepositContractAddress == (common.Address{}) {
		return ErrMissingDepositContractAddress
	}
	if cfg.L1ChainID == 0 {
		return ErrMissingL1ChainID
	}
	if cfg.L2ChainID == 0 {
		return ErrMissingL2ChainID
	}
	if cfg.L1ChainID == cfg.L2ChainID {
		return ErrChainIDsSame
	}
	return nil
}

// IsCel2 reports whether the Cel2 fork is active at the given timestamp.
func (cfg *Config) IsCel2(timestamp uint64) bool {
	return cfg.Cel2Time != nil && timestamp >= *cfg.Cel2Time
}

// TimestampForBlock returns the expected L2 timestamp for the given block number.
func (cfg *Config) TimestampForBlock(blockNumber uint64) uint64 {
	return cfg.Genesis.L2Time + (blockNumber-cfg.Genesis.L2.Number)*cfg.BlockTime
}

// ParseConfig reads a rollup config from the given reader, rejecting
// unknown fields to catch schema drift early.
func (cfg *Config) ParseConfig(r io.Reader) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode rollup config: %w", err)
	}
	return cfg.Check()
}

// LoadConfig loads and validates a rollup config from a JSON file.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rollup config: %w", err)
	}
	defer file.Close()

	var cfg Config
	return &cfg, cfg.ParseConfig(file)
}
