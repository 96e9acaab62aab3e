package witness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/op-succinct/preimage"
	"github.com/celo-org/op-succinct/testlog"
)

// serveOracle runs minimal host-side loops for the given preimages until the
// client halves are closed.
func serveOracle(t *testing.T, preimages map[common.Hash][]byte) (preimage.FileChannel, preimage.FileChannel) {
	t.Helper()
	pHost, pClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)
	hHost, hClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)
	t.Cleanup(func() {
		pHost.Close()
		hHost.Close()
	})

	server := preimage.NewOracleServer(pHost)
	go func() {
		for {
			err := server.NextPreimageRequest(func(key common.Hash) ([]byte, error) {
				value, ok := preimages[key]
				if !ok {
					return nil, fmt.Errorf("unknown preimage %s", key)
				}
				return value, nil
			})
			if err != nil {
				return
			}
		}
	}()
	reader := preimage.NewHintReader(hHost)
	go func() {
		for {
			if err := reader.NextHint(func(string) error { return nil }); err != nil {
				return
			}
		}
	}()
	return pClient, hClient
}

type recordedProgram struct {
	keys  []preimage.Key
	hints []string
}

func (p recordedProgram) Run(ctx context.Context, oracle preimage.Oracle, hinter preimage.Hinter) error {
	for _, hint := range p.hints {
		hinter.Hint(preimage.RawHint(hint))
	}
	for _, key := range p.keys {
		oracle.Get(key)
	}
	return nil
}

func TestProgramGeneratorRecordsTraffic(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	valueA := []byte("value a")
	valueB := []byte("value b")
	keyA := preimage.Keccak256Key(crypto.Keccak256Hash(valueA))
	keyB := preimage.Keccak256Key(crypto.Keccak256Hash(valueB))
	pClient, hClient := serveOracle(t, map[common.Hash][]byte{
		keyA.PreimageKey(): valueA,
		keyB.PreimageKey(): valueB,
	})
	defer pClient.Close()
	defer hClient.Close()

	program := recordedProgram{
		keys:  []preimage.Key{keyA, keyB},
		hints: []string{"first hint", "second hint"},
	}
	data, err := NewProgramGenerator(logger, program).Run(context.Background(), pClient, hClient)
	require.NoError(t, err)

	require.Equal(t, valueA, []byte(data.Preimages[keyA.PreimageKey()]))
	require.Equal(t, valueB, []byte(data.Preimages[keyB.PreimageKey()]))
	require.Equal(t, []string{"first hint", "second hint"}, data.Hints)
}

func TestProgramGeneratorRecoversOraclePanic(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	pClient, hClient := serveOracle(t, nil)
	defer hClient.Close()
	// Closing the preimage channel makes the oracle client panic on use.
	require.NoError(t, pClient.Close())

	program := recordedProgram{keys: []preimage.Key{preimage.LocalIndexKey(1)}}
	_, err := NewProgramGenerator(logger, program).Run(context.Background(), pClient, hClient)
	require.ErrorContains(t, err, "witness program failed")
}

type erroringProgram struct{ err error }

func (p erroringProgram) Run(context.Context, preimage.Oracle, preimage.Hinter) error {
	return p.err
}

func TestProgramGeneratorProgramError(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	pClient, hClient := serveOracle(t, nil)
	defer pClient.Close()
	defer hClient.Close()

	boom := errors.New("bad derivation")
	_, err := NewProgramGenerator(logger, erroringProgram{err: boom}).Run(context.Background(), pClient, hClient)
	require.ErrorIs(t, err, boom)
}

func TestDataMarshal(t *testing.T) {
	data := NewData()
	key := preimage.LocalIndexKey(1).PreimageKey()
	data.Preimages[key] = []byte{0xde, 0xad}
	data.Hints = append(data.Hints, "a hint")

	encoded, err := data.Marshal()
	require.NoError(t, err)

	var decoded Data
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, data.Preimages, decoded.Preimages)
	require.Equal(t, data.Hints, decoded.Hints)
}
