package preimage

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	sha256 "github.com/minio/sha256-simd"
)

func TestOracleRoundTrip(t *testing.T) {
	hostCh, clientCh, err := CreateBidirectionalChannel()
	require.NoError(t, err)
	defer hostCh.Close()
	defer clientCh.Close()

	preimages := map[common.Hash][]byte{}
	for i := 0; i < 10; i++ {
		value := make([]byte, i*31)
		_, err := rand.Read(value)
		require.NoError(t, err)
		preimages[Keccak256Key(crypto.Keccak256Hash(value)).PreimageKey()] = value
	}

	server := NewOracleServer(hostCh)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			err := server.NextPreimageRequest(func(key common.Hash) ([]byte, error) {
				value, ok := preimages[key]
				if !ok {
					return nil, fmt.Errorf("unknown preimage %s", key)
				}
				return value, nil
			})
			if err != nil {
				require.ErrorIs(t, err, io.EOF)
				return
			}
		}
	}()

	client := NewOracleClient(clientCh)
	for key, value := range preimages {
		require.Equal(t, value, client.Get(Keccak256Key(key)))
	}

	require.NoError(t, clientCh.Close())
	wg.Wait()
}

func TestOracleZeroLengthPreimage(t *testing.T) {
	hostCh, clientCh, err := CreateBidirectionalChannel()
	require.NoError(t, err)
	defer hostCh.Close()
	defer clientCh.Close()

	server := NewOracleServer(hostCh)
	go func() {
		_ = server.NextPreimageRequest(func(common.Hash) ([]byte, error) {
			return nil, nil
		})
	}()

	client := NewOracleClient(clientCh)
	require.Empty(t, client.Get(LocalIndexKey(1)))
}

func TestWithVerification(t *testing.T) {
	value := []byte("some preimage value")
	keccakKey := Keccak256Key(crypto.Keccak256Hash(value)).PreimageKey()
	shaDigest := sha256.Sum256(value)
	shaKey := Sha256Key(shaDigest).PreimageKey()
	genericKey := GlobalGenericKey(common.HexToHash("0x1234")).PreimageKey()

	source := func(ret []byte) PreimageGetter {
		return func(common.Hash) ([]byte, error) { return ret, nil }
	}

	t.Run("valid keccak", func(t *testing.T) {
		got, err := WithVerification(source(value))(keccakKey)
		require.NoError(t, err)
		require.Equal(t, value, got)
	})
	t.Run("invalid keccak", func(t *testing.T) {
		_, err := WithVerification(source([]byte("tampered")))(keccakKey)
		require.ErrorContains(t, err, "does not match key")
	})
	t.Run("valid sha256", func(t *testing.T) {
		got, err := WithVerification(source(value))(shaKey)
		require.NoError(t, err)
		require.Equal(t, value, got)
	})
	t.Run("invalid sha256", func(t *testing.T) {
		_, err := WithVerification(source([]byte("tampered")))(shaKey)
		require.ErrorContains(t, err, "does not match key")
	})
	t.Run("generic keys are not verifiable", func(t *testing.T) {
		got, err := WithVerification(source(value))(genericKey)
		require.NoError(t, err)
		require.Equal(t, value, got)
	})
	t.Run("getter error passes through", func(t *testing.T) {
		boom := fmt.Errorf("boom")
		_, err := WithVerification(func(common.Hash) ([]byte, error) { return nil, boom })(keccakKey)
		require.ErrorIs(t, err, boom)
	})
}
