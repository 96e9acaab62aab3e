package preimage

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	sha256 "github.com/minio/sha256-simd"
)

// PreimageGetter resolves a 32-byte preimage key to its preimage.
type PreimageGetter func(key common.Hash) ([]byte, error)

// OracleClient is the client side of the preimage request/response protocol.
// A request writes the 32-byte key; the response is a big-endian uint64 length
// followed by the payload.
type OracleClient struct {
	rw io.ReadWriter
}

func NewOracleClient(rw io.ReadWriter) *OracleClient {
	return &OracleClient{rw: rw}
}

var _ Oracle = (*OracleClient)(nil)

func (o *OracleClient) Get(key Key) []byte {
	h := key.PreimageKey()
	if _, err := o.rw.Write(h[:]); err != nil {
		panic(fmt.Errorf("failed to write key %s (%T) to preimage oracle: %w", key, key, err))
	}

	var length uint64
	if err := binary.Read(o.rw, binary.BigEndian, &length); err != nil {
		panic(fmt.Errorf("failed to read pre-image length of key %s (%T): %w", key, key, err))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(o.rw, payload); err != nil {
		panic(fmt.Errorf("failed to read pre-image of key %s (%T): %w", key, key, err))
	}
	return payload
}

// OracleServer serves preimage requests from the other end of the channel.
type OracleServer struct {
	rw io.ReadWriter
}

func NewOracleServer(rw io.ReadWriter) *OracleServer {
	return &OracleServer{rw: rw}
}

// NextPreimageRequest reads the next incoming request, resolves it with the
// given getter, and writes back the response. It returns io.EOF once the
// client side of the channel is closed.
func (o *OracleServer) NextPreimageRequest(getter PreimageGetter) error {
	var key common.Hash
	if _, err := io.ReadFull(o.rw, key[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("failed to read requested pre-image key: %w", err)
	}
	value, err := getter(key)
	if err != nil {
		return fmt.Errorf("failed to serve pre-image %s request: %w", key, err)
	}

	if err := binary.Write(o.rw, binary.BigEndian, uint64(len(value))); err != nil {
		return fmt.Errorf("failed to write pre-image %s length: %w", key, err)
	}
	if _, err := o.rw.Write(value); err != nil {
		return fmt.Errorf("failed to write pre-image %s data: %w", key, err)
	}
	return nil
}

// WithVerification wraps a getter to check that every returned hash-keyed
// preimage actually matches its key before it is handed out.
func WithVerification(getter PreimageGetter) PreimageGetter {
	return func(key common.Hash) ([]byte, error) {
		value, err := getter(key)
		if err != nil {
			return nil, err
		}
		switch KeyType(key[0]) {
		case Keccak256KeyType:
			if Keccak256Key(crypto.Keccak256Hash(value)).PreimageKey() != key {
				return nil, fmt.Errorf("fetched pre-image does not match key %s", key)
			}
		case Sha256KeyType:
			hash := sha256.Sum256(value)
			if Sha256Key(hash).PreimageKey() != key {
				return nil, fmt.Errorf("fetched pre-image does not match key %s", key)
			}
		}
		return value, nil
	}
}
