package boot

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/op-succinct/preimage"
)

func testBootInfo() *BootInfo {
	return &BootInfo{
		L1Head:             common.HexToHash("0x1111"),
		L2OutputRoot:       common.HexToHash("0x2222"),
		L2Claim:            common.HexToHash("0x3333"),
		L2ClaimBlockNumber: 0xdeadbeef,
		RollupConfig:       testConfig(),
	}
}

func TestLocalPreimageSource(t *testing.T) {
	info := testBootInfo()
	src := NewLocalPreimageSource(info)

	value, err := src.Get(L1HeadLocalIndex.PreimageKey())
	require.NoError(t, err)
	require.Equal(t, info.L1Head.Bytes(), value)

	value, err = src.Get(L2OutputRootLocalIndex.PreimageKey())
	require.NoError(t, err)
	require.Equal(t, info.L2OutputRoot.Bytes(), value)

	value, err = src.Get(L2ClaimLocalIndex.PreimageKey())
	require.NoError(t, err)
	require.Equal(t, info.L2Claim.Bytes(), value)

	value, err = src.Get(L2ClaimBlockNumberLocalIndex.PreimageKey())
	require.NoError(t, err)
	require.Equal(t, binary.BigEndian.AppendUint64(nil, info.L2ClaimBlockNumber), value)

	value, err = src.Get(RollupConfigLocalIndex.PreimageKey())
	require.NoError(t, err)
	expected, err := json.Marshal(info.RollupConfig)
	require.NoError(t, err)
	require.Equal(t, expected, value)
}

func TestLocalPreimageSourceUnknownKey(t *testing.T) {
	src := NewLocalPreimageSource(testBootInfo())
	_, err := src.Get(preimage.LocalIndexKey(99).PreimageKey())
	require.ErrorIs(t, err, ErrUnknownLocalKey)
}

type mapOracle map[common.Hash][]byte

func (m mapOracle) Get(key preimage.Key) []byte {
	value, ok := m[key.PreimageKey()]
	if !ok {
		panic("preimage not available")
	}
	return value
}

func TestBootstrapClient(t *testing.T) {
	info := testBootInfo()
	src := NewLocalPreimageSource(info)

	oracle := mapOracle{}
	for _, key := range []preimage.LocalIndexKey{
		L1HeadLocalIndex,
		L2OutputRootLocalIndex,
		L2ClaimLocalIndex,
		L2ClaimBlockNumberLocalIndex,
		RollupConfigLocalIndex,
	} {
		value, err := src.Get(key.PreimageKey())
		require.NoError(t, err)
		oracle[key.PreimageKey()] = value
	}

	booted := NewBootstrapClient(oracle).BootInfo()
	require.Equal(t, info.L1Head, booted.L1Head)
	require.Equal(t, info.L2OutputRoot, booted.L2OutputRoot)
	require.Equal(t, info.L2Claim, booted.L2Claim)
	require.Equal(t, info.L2ClaimBlockNumber, booted.L2ClaimBlockNumber)
	require.Equal(t, HashRollupConfig(info.RollupConfig), HashRollupConfig(booted.RollupConfig))
}

func TestBootstrapClientBadConfig(t *testing.T) {
	oracle := mapOracle{
		L1HeadLocalIndex.PreimageKey():             common.HexToHash("0x1111").Bytes(),
		L2OutputRootLocalIndex.PreimageKey():       common.HexToHash("0x2222").Bytes(),
		L2ClaimLocalIndex.PreimageKey():            common.HexToHash("0x3333").Bytes(),
		L2ClaimBlockNumberLocalIndex.PreimageKey(): binary.BigEndian.AppendUint64(nil, 1),
		RollupConfigLocalIndex.PreimageKey():       []byte("not json"),
	}
	require.Panics(t, func() {
		NewBootstrapClient(oracle).BootInfo()
	})
}

func TestAggregationOutputsMarshal(t *testing.T) {
	info := testBootInfo()
	vkey := common.HexToHash("0x4444")
	outputs := NewAggregationOutputs(info, vkey)

	encoded, err := outputs.Marshal()
	require.NoError(t, err)
	require.Len(t, encoded, AggregationOutputsSize)

	require.Equal(t, info.L1Head.Bytes(), encoded[0:32])
	require.Equal(t, info.L2OutputRoot.Bytes(), encoded[32:64])
	require.Equal(t, info.L2Claim.Bytes(), encoded[64:96])
	// Block number is right-aligned in its word.
	require.Equal(t, make([]byte, 24), encoded[96:120])
	require.Equal(t, info.L2ClaimBlockNumber, binary.BigEndian.Uint64(encoded[120:128]))
	require.Equal(t, HashRollupConfig(info.RollupConfig).Bytes(), encoded[128:160])
	require.Equal(t, vkey.Bytes(), encoded[160:192])
}
