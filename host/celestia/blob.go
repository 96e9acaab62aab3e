package celestia

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/celo-org/op-succinct/preimage"
)

// BlobPointerHeaderFlag marks batch-inbox calldata that carries a blob
// pointer instead of inline batch data.
const BlobPointerHeaderFlag byte = 0x0c

// ErrNotBlobPointer is returned when batcher calldata does not carry the
// blob pointer header flag.
var ErrNotBlobPointer = errors.New("batcher data is not a blob pointer")

// BlobPointerSize is the serialized size: three uint64 fields followed by
// two 32-byte roots.
const BlobPointerSize = 3*8 + 2*32

// BlobPointer locates one batch blob on the DA chain: the block it was
// included in, its share range within that block's data square, the blob
// commitment, and the data root of the containing block.
type BlobPointer struct {
	BlockHeight  uint64
	Start        uint64
	SharesLength uint64
	TxCommitment [32]byte
	DataRoot     [32]byte
}

// MarshalBinary encodes the pointer.
// Serialization format: height + start + shares length + commitment + data root.
func (b *BlobPointer) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, b.BlockHeight); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, b.Start); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, b.SharesLength); err != nil {
		return nil, err
	}
	if _, err := buf.Write(b.TxCommitment[:]); err != nil {
		return nil, err
	}
	if _, err := buf.Write(b.DataRoot[:]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the pointer from its serialized form.
func (b *BlobPointer) UnmarshalBinary(data []byte) error {
	if len(data) < BlobPointerSize {
		return fmt.Errorf("blob pointer too short: %d bytes", len(data))
	}
	buf := bytes.NewReader(data)
	if err := binary.Read(buf, binary.BigEndian, &b.BlockHeight); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.BigEndian, &b.Start); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.BigEndian, &b.SharesLength); err != nil {
		return err
	}
	if _, err := buf.Read(b.TxCommitment[:]); err != nil {
		return err
	}
	if _, err := buf.Read(b.DataRoot[:]); err != nil {
		return err
	}
	return nil
}

// ParseBatcherData extracts a blob pointer from batch-inbox calldata. The
// first byte is the header flag, the rest is the serialized pointer.
func ParseBatcherData(data []byte) (*BlobPointer, error) {
	if len(data) == 0 || data[0] != BlobPointerHeaderFlag {
		return nil, ErrNotBlobPointer
	}
	var pointer BlobPointer
	if err := pointer.UnmarshalBinary(data[1:]); err != nil {
		return nil, fmt.Errorf("failed to decode blob pointer: %w", err)
	}
	return &pointer, nil
}

// PreimageKey derives the generic preimage key a client uses to request the
// blob this pointer locates. The key identifies the pointer, not the blob
// contents, so it gets the unverified generic key type.
func (b *BlobPointer) PreimageKey() (common.Hash, error) {
	enc, err := b.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	return preimage.GlobalGenericKey(crypto.Keccak256Hash(enc)).PreimageKey(), nil
}
