package celestia

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/op-succinct/host"
	"github.com/celo-org/op-succinct/host/kvstore"
	"github.com/celo-org/op-succinct/host/prefetcher"
	"github.com/celo-org/op-succinct/rollup"
	"github.com/celo-org/op-succinct/testlog"
)

// mockFetcher is a ChainFetcher backed by fixed data.
type mockFetcher struct {
	cfg       *rollup.Config
	latestL1  uint64
	safeL1    map[uint64]uint64 // l2 block -> L1 block where it became safe
	inboxTxs  map[uint64][][]byte
	finalized uint64
	outputs   map[uint64]common.Hash
}

var _ host.ChainFetcher = (*mockFetcher)(nil)

func (m *mockFetcher) RollupConfig() *rollup.Config { return m.cfg }

func (m *mockFetcher) L1HeadHeader(context.Context) (*types.Header, error) {
	return l1Header(m.latestL1), nil
}

func (m *mockFetcher) L1HeaderByNumber(_ context.Context, number uint64) (*types.Header, error) {
	if number > m.latestL1 {
		return nil, fmt.Errorf("unknown L1 block %d", number)
	}
	return l1Header(number), nil
}

func (m *mockFetcher) L1HeaderByHash(_ context.Context, hash common.Hash) (*types.Header, error) {
	for n := uint64(0); n <= m.latestL1; n++ {
		if l1Header(n).Hash() == hash {
			return l1Header(n), nil
		}
	}
	return nil, fmt.Errorf("unknown L1 block %s", hash)
}

func (m *mockFetcher) L1BlockWhereSafe(_ context.Context, l2Block uint64) (uint64, error) {
	l1Block, ok := m.safeL1[l2Block]
	if !ok {
		return 0, fmt.Errorf("l2 block %d is not safe yet", l2Block)
	}
	return l1Block, nil
}

func (m *mockFetcher) L1BlockAtOrAfterTimestamp(context.Context, uint64) (rollup.BlockID, error) {
	return rollup.BlockID{}, fmt.Errorf("not implemented")
}

func (m *mockFetcher) BatcherTransactions(_ context.Context, l1BlockNumber uint64) ([][]byte, error) {
	return m.inboxTxs[l1BlockNumber], nil
}

func (m *mockFetcher) FinalizedL2BlockNumber(context.Context) (uint64, error) {
	return m.finalized, nil
}

func (m *mockFetcher) L2OutputRoot(_ context.Context, blockNumber uint64) (common.Hash, error) {
	root, ok := m.outputs[blockNumber]
	if !ok {
		return common.Hash{}, fmt.Errorf("no output for block %d", blockNumber)
	}
	return root, nil
}

func (m *mockFetcher) L1HeaderRLP(context.Context, common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockFetcher) L1Transactions(context.Context, common.Hash) ([][]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockFetcher) L1Receipts(context.Context, common.Hash) ([][]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockFetcher) L2HeaderRLP(context.Context, common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockFetcher) L2Transactions(context.Context, common.Hash) ([][]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockFetcher) L2StateNode(context.Context, common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockFetcher) L2Code(context.Context, common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockFetcher) L2OutputPreimage(context.Context, common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func l1Header(number uint64) *types.Header {
	return &types.Header{Number: new(big.Int).SetUint64(number), Time: 1700000000 + number*12}
}

// mockBlobstream serves attestations from a fixed set of commitment ranges.
type mockBlobstream struct {
	attested uint64
	ranges   []CommitmentRange
}

var _ BlobstreamReader = (*mockBlobstream)(nil)

func (m *mockBlobstream) LatestAttestedHeight(context.Context) (uint64, error) {
	return m.attested, nil
}

func (m *mockBlobstream) CommitmentForHeight(_ context.Context, height uint64) (*CommitmentRange, error) {
	for i := range m.ranges {
		if m.ranges[i].Covers(height) {
			return &m.ranges[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrCommitmentNotFound, height)
}

// mockIndex maps L2 blocks to DA heights directly.
type mockIndex struct {
	daHeight map[uint64]uint64
}

var _ BlobIndex = (*mockIndex)(nil)

func (m *mockIndex) PointerForL2Block(_ context.Context, l2Block uint64) (*BlobPointer, error) {
	height, ok := m.daHeight[l2Block]
	if !ok {
		return nil, fmt.Errorf("%w: L2 block %d", ErrPointerNotFound, l2Block)
	}
	return &BlobPointer{BlockHeight: height}, nil
}

type mockBlobs struct {
	data map[uint64][]byte
}

var _ BlobReader = (*mockBlobs)(nil)

func (m *mockBlobs) Blob(_ context.Context, pointer *BlobPointer) ([]byte, error) {
	blob, ok := m.data[pointer.BlockHeight]
	if !ok {
		return nil, fmt.Errorf("no blob at height %d", pointer.BlockHeight)
	}
	return blob, nil
}

func testRollupConfig() *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1:     rollup.BlockID{Hash: common.HexToHash("0xaa"), Number: 0},
			L2:     rollup.BlockID{Hash: common.HexToHash("0xbb"), Number: 0},
			L2Time: 1700000000,
		},
		BlockTime:              2,
		MaxSequencerDrift:      600,
		SeqWindowSize:          3600,
		ChannelTimeout:         300,
		L1ChainID:              1,
		L2ChainID:              10,
		BatchInboxAddress:      common.HexToAddress("0xff00000000000000000000000000000000000010"),
		DepositContractAddress: common.HexToAddress("0xbeb5fc579115071764c7423a4f12edde41f106ed"),
	}
}

func newTestHost(t *testing.T, f *mockFetcher, blobstream BlobstreamReader, index BlobIndex) *Host {
	return NewHost(testlog.Logger(t, log.LevelInfo), f, nil, blobstream, &mockBlobs{}, index)
}

func TestFinalizedL2BlockNumberBoundedByAttestation(t *testing.T) {
	f := &mockFetcher{cfg: testRollupConfig(), finalized: 600}
	// One DA block per 10 L2 blocks; heights above 50 are not attested yet.
	index := &mockIndex{daHeight: map[uint64]uint64{}}
	for l2 := uint64(1); l2 <= 600; l2++ {
		index.daHeight[l2] = l2 / 10
	}
	h := newTestHost(t, f, &mockBlobstream{attested: 50}, index)

	// Finalization alone would allow block 600; the attestation bound caps
	// the answer at the last L2 block whose blob height is attested.
	next, err := h.FinalizedL2BlockNumber(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, uint64(509), *next)
}

func TestFinalizedL2BlockNumberAttestationAhead(t *testing.T) {
	f := &mockFetcher{cfg: testRollupConfig(), finalized: 300}
	index := &mockIndex{daHeight: map[uint64]uint64{}}
	for l2 := uint64(1); l2 <= 300; l2++ {
		index.daHeight[l2] = l2 / 10
	}
	// Everything finalized is attested: L2 finality is the bound.
	h := newTestHost(t, f, &mockBlobstream{attested: 1000}, index)

	next, err := h.FinalizedL2BlockNumber(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, uint64(300), *next)
}

func TestFinalizedL2BlockNumberNothingNew(t *testing.T) {
	f := &mockFetcher{cfg: testRollupConfig(), finalized: 300}
	h := newTestHost(t, f, &mockBlobstream{attested: 1000}, &mockIndex{})

	next, err := h.FinalizedL2BlockNumber(context.Background(), 300)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestFinalizedL2BlockNumberBridgeUninitialized(t *testing.T) {
	f := &mockFetcher{cfg: testRollupConfig(), finalized: 300}
	h := newTestHost(t, f, &mockBlobstream{attested: 0}, &mockIndex{})

	next, err := h.FinalizedL2BlockNumber(context.Background(), 100)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestFinalizedL2BlockNumberNextBlockUncovered(t *testing.T) {
	f := &mockFetcher{cfg: testRollupConfig(), finalized: 300}
	index := &mockIndex{daHeight: map[uint64]uint64{101: 60}}
	h := newTestHost(t, f, &mockBlobstream{attested: 50}, index)

	next, err := h.FinalizedL2BlockNumber(context.Background(), 100)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestSafeL1Head(t *testing.T) {
	f := &mockFetcher{
		cfg:      testRollupConfig(),
		latestL1: 1000,
		safeL1:   map[uint64]uint64{200: 500},
	}
	index := &mockIndex{daHeight: map[uint64]uint64{200: 40}}

	t.Run("attestation behind derivation head", func(t *testing.T) {
		blobstream := &mockBlobstream{
			attested: 100,
			ranges: []CommitmentRange{{
				StartBlock: 0, EndBlock: 101,
				L1Block: rollup.BlockID{Hash: l1Header(480).Hash(), Number: 480},
			}},
		}
		h := newTestHost(t, f, blobstream, index)
		head, err := h.SafeL1Head(context.Background(), 200, false)
		require.NoError(t, err)
		// Derivation head: safe L1 block 500 plus the buffer.
		require.Equal(t, l1Header(520).Hash(), head)
	})

	t.Run("attestation ahead of derivation head", func(t *testing.T) {
		blobstream := &mockBlobstream{
			attested: 100,
			ranges: []CommitmentRange{{
				StartBlock: 0, EndBlock: 101,
				L1Block: rollup.BlockID{Hash: l1Header(800).Hash(), Number: 800},
			}},
		}
		h := newTestHost(t, f, blobstream, index)
		head, err := h.SafeL1Head(context.Background(), 200, false)
		require.NoError(t, err)
		require.Equal(t, l1Header(800).Hash(), head)
	})

	t.Run("blob not yet attested", func(t *testing.T) {
		h := newTestHost(t, f, &mockBlobstream{attested: 30}, index)
		_, err := h.SafeL1Head(context.Background(), 200, false)
		require.ErrorContains(t, err, "not yet attested")
	})
}

func TestInboxIndex(t *testing.T) {
	pointer := testPointer()
	enc, err := pointer.MarshalBinary()
	require.NoError(t, err)
	inboxData := append([]byte{BlobPointerHeaderFlag}, enc...)

	f := &mockFetcher{
		cfg:    testRollupConfig(),
		safeL1: map[uint64]uint64{200: 500},
		inboxTxs: map[uint64][][]byte{
			// Inline frame data must be skipped; the pointer is a few blocks
			// before the block where the claim became safe.
			498: {[]byte{0x00, 0x01, 0x02}, inboxData},
		},
	}
	index := NewInboxIndex(testlog.Logger(t, log.LevelInfo), f)

	got, err := index.PointerForL2Block(context.Background(), 200)
	require.NoError(t, err)
	require.Equal(t, pointer, got)
}

func TestInboxIndexNotFound(t *testing.T) {
	f := &mockFetcher{
		cfg:    testRollupConfig(),
		safeL1: map[uint64]uint64{200: 500},
	}
	index := NewInboxIndex(testlog.Logger(t, log.LevelInfo), f)

	_, err := index.PointerForL2Block(context.Background(), 200)
	require.ErrorIs(t, err, ErrPointerNotFound)
}

func TestBlobPrefetcher(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	pointer := testPointer()
	blob := []byte("the blob payload")
	kv := kvstore.NewMemKV()
	p := &blobPrefetcher{
		logger: logger,
		inner:  prefetcher.NewPrefetcher(logger, &mockFetcher{cfg: testRollupConfig()}, kv),
		blobs:  &mockBlobs{data: map[uint64][]byte{pointer.BlockHeight: blob}},
		kv:     kv,
	}

	require.NoError(t, p.Hint(BlobHint(*pointer).Hint()))
	key, err := pointer.PreimageKey()
	require.NoError(t, err)

	value, err := p.GetPreimage(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, blob, value)

	// Cached now; a missing blob source would surface otherwise.
	p.blobs = &mockBlobs{}
	value, err = p.GetPreimage(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, blob, value)
}

func TestBlobPrefetcherDelegates(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	kv := kvstore.NewMemKV()
	p := &blobPrefetcher{
		logger: logger,
		inner:  prefetcher.NewPrefetcher(logger, &mockFetcher{cfg: testRollupConfig()}, kv),
		blobs:  &mockBlobs{},
		kv:     kv,
	}

	// Non-blob hints and keys pass through to the chain prefetcher.
	require.NoError(t, p.Hint("l1-block-header "+common.HexToHash("0x01").String()))
	_, err := p.GetPreimage(context.Background(), common.HexToHash("0x02"))
	require.Error(t, err)
}

func TestBlobPrefetcherBadHint(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	kv := kvstore.NewMemKV()
	p := &blobPrefetcher{
		logger: logger,
		inner:  prefetcher.NewPrefetcher(logger, &mockFetcher{cfg: testRollupConfig()}, kv),
		kv:     kv,
	}
	require.ErrorContains(t, p.Hint(HintCelestiaBlob+" not-hex"), "invalid blob pointer hint")
	require.ErrorContains(t, p.Hint(HintCelestiaBlob+" 0x0102"), "invalid blob pointer hint")
}
