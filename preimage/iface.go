package preimage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key identifies a preimage that can be retrieved from the oracle.
type Key interface {
	// PreimageKey changes the Key commitment into a
	// 32-byte type-prefixed preimage key.
	PreimageKey() common.Hash
}

// Oracle provides the pre-image for a given key.
type Oracle interface {
	// Get the full pre-image of a given pre-image key.
	// This returns no error: the client is expected to be deterministic,
	// and any missing data is a fatal program failure.
	Get(key Key) []byte
}

// Hint is an abstract hint interface, to typed hints to the host.
type Hint interface {
	Hint() string
}

// Hinter sends hints to the host, to indicate what preimages are
// about to be requested.
type Hinter interface {
	Hint(v Hint)
}

// KeyType is the type-prefix of a 32-byte preimage key.
type KeyType byte

const (
	// The zero key type is illegal to use, ensuring all keys are non-zero.
	_ KeyType = 0
	// LocalKeyType is for input-type pre-images, specific to the local program instance.
	LocalKeyType KeyType = 1
	// Keccak256KeyType is for keccak256 pre-images, for any global shared pre-images.
	Keccak256KeyType KeyType = 2
	// GlobalGenericKeyType is a reserved key type for bespoke global keys
	// whose preimage cannot be verified against the key itself.
	GlobalGenericKeyType KeyType = 3
	// Sha256KeyType is for sha256 pre-images, for any global shared pre-images.
	Sha256KeyType KeyType = 4
)

// LocalIndexKey is a key local to the program, indexing a special program input.
type LocalIndexKey uint64

func (k LocalIndexKey) PreimageKey() (out common.Hash) {
	out[0] = byte(LocalKeyType)
	binary.BigEndian.PutUint64(out[24:], uint64(k))
	return
}

// Keccak256Key wraps a keccak256 hash to use it as a typed pre-image key.
type Keccak256Key common.Hash

func (k Keccak256Key) PreimageKey() (out common.Hash) {
	out = common.Hash(k)
	out[0] = byte(Keccak256KeyType)
	return
}

func (k Keccak256Key) String() string {
	return common.Hash(k).String()
}

// GlobalGenericKey wraps a bespoke identifier hash to use it as a typed
// pre-image key. The host is trusted for the preimage; no verification
// against the key is possible.
type GlobalGenericKey common.Hash

func (k GlobalGenericKey) PreimageKey() (out common.Hash) {
	out = common.Hash(k)
	out[0] = byte(GlobalGenericKeyType)
	return
}

func (k GlobalGenericKey) String() string {
	return common.Hash(k).String()
}

// Sha256Key wraps a sha256 hash to use it as a typed pre-image key.
type Sha256Key common.Hash

func (k Sha256Key) PreimageKey() (out common.Hash) {
	out = common.Hash(k)
	out[0] = byte(Sha256KeyType)
	return
}

func (k Sha256Key) String() string {
	return common.Hash(k).String()
}
