package host

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/op-succinct/preimage"
	"github.com/celo-org/op-succinct/testlog"
)

func TestRunPreimageServer(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	pHost, pClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)
	hHost, hClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)

	preimages := map[common.Hash][]byte{
		common.HexToHash("0x01"): []byte("one"),
		common.HexToHash("0x02"): []byte("two"),
	}
	getter := func(key common.Hash) ([]byte, error) {
		value, ok := preimages[key]
		if !ok {
			return nil, fmt.Errorf("unknown preimage %s", key)
		}
		return value, nil
	}
	hints := make(chan string, 1)
	hinter := func(hint string) error {
		hints <- hint
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- RunPreimageServer(context.Background(), logger, pHost, hHost, getter, hinter)
	}()

	preimage.NewHintWriter(hClient).Hint(preimage.RawHint("some hint"))
	oracle := preimage.NewOracleClient(pClient)
	require.Equal(t, []byte("one"), oracle.Get(rawKey(common.HexToHash("0x01"))))
	require.Equal(t, []byte("two"), oracle.Get(rawKey(common.HexToHash("0x02"))))
	require.Equal(t, "some hint", <-hints)

	require.NoError(t, pClient.Close())
	require.NoError(t, hClient.Close())
	require.NoError(t, <-done)
}

func TestRunPreimageServerGetterError(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	pHost, pClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)
	hHost, hClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)
	defer pClient.Close()
	defer hClient.Close()

	getter := func(key common.Hash) ([]byte, error) {
		return nil, fmt.Errorf("unknown preimage %s", key)
	}
	done := make(chan error, 1)
	go func() {
		done <- RunPreimageServer(context.Background(), logger, pHost, hHost, getter, func(string) error { return nil })
	}()

	key := rawKey(common.HexToHash("0x01")).PreimageKey()
	_, err = pClient.Write(key[:])
	require.NoError(t, err)
	require.ErrorContains(t, <-done, "unknown preimage")
}

func TestServerTaskAbort(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	pHost, pClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)
	hHost, hClient, err := preimage.CreateBidirectionalChannel()
	require.NoError(t, err)
	defer pClient.Close()
	defer hClient.Close()

	// The server blocks reading from channels nobody writes to. Abort must
	// still stop it by closing the host halves.
	task := StartServerTask(context.Background(), func(ctx context.Context) error {
		return RunPreimageServer(ctx, logger, pHost, hHost,
			func(common.Hash) ([]byte, error) { return nil, nil },
			func(string) error { return nil })
	}, pHost, hHost)

	aborted := make(chan struct{})
	go func() {
		task.Abort(logger)
		close(aborted)
	}()
	select {
	case <-aborted:
	case <-time.After(10 * time.Second):
		t.Fatal("Abort did not stop the server")
	}

	// Idempotent.
	task.Abort(logger)
}

func TestPreimageSourceSplitter(t *testing.T) {
	local := func(common.Hash) ([]byte, error) { return []byte("local"), nil }
	global := func(common.Hash) ([]byte, error) { return []byte("global"), nil }
	splitter := NewPreimageSourceSplitter(local, global)

	value, err := splitter.Get(preimage.LocalIndexKey(5).PreimageKey())
	require.NoError(t, err)
	require.Equal(t, []byte("local"), value)

	value, err = splitter.Get(preimage.Keccak256Key(common.HexToHash("0x01")).PreimageKey())
	require.NoError(t, err)
	require.Equal(t, []byte("global"), value)

	value, err = splitter.Get(preimage.GlobalGenericKey(common.HexToHash("0x02")).PreimageKey())
	require.NoError(t, err)
	require.Equal(t, []byte("global"), value)
}

// rawKey uses an already prefixed hash as a preimage key.
type rawKey common.Hash

func (k rawKey) PreimageKey() common.Hash { return common.Hash(k) }
