package celestia

import (
	"context"
	"encoding/hex"
	"fmt"

	openrpc "github.com/celestiaorg/celestia-openrpc"
	"github.com/celestiaorg/celestia-openrpc/types/share"
)

// BlobReader retrieves blob contents from the DA network.
type BlobReader interface {
	Blob(ctx context.Context, pointer *BlobPointer) ([]byte, error)
}

// BlobClient reads blobs from a DA light node over its RPC interface.
type BlobClient struct {
	client    *openrpc.Client
	namespace share.Namespace
}

var _ BlobReader = (*BlobClient)(nil)

func NewBlobClient(ctx context.Context, rpcURL, authToken, namespaceID string) (*BlobClient, error) {
	if namespaceID == "" {
		return nil, fmt.Errorf("namespace id cannot be empty")
	}
	nsBytes, err := hex.DecodeString(namespaceID)
	if err != nil {
		return nil, fmt.Errorf("invalid namespace id %q: %w", namespaceID, err)
	}
	namespace, err := share.NewBlobNamespaceV0(nsBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to build namespace: %w", err)
	}
	client, err := openrpc.NewClient(ctx, rpcURL, authToken)
	if err != nil {
		return nil, fmt.Errorf("failed to dial DA node %s: %w", rpcURL, err)
	}
	return &BlobClient{
		client:    client,
		namespace: namespace,
	}, nil
}

func (c *BlobClient) Blob(ctx context.Context, pointer *BlobPointer) ([]byte, error) {
	b, err := c.client.Blob.Get(ctx, pointer.BlockHeight, c.namespace, pointer.TxCommitment[:])
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob at height %d: %w", pointer.BlockHeight, err)
	}
	return b.Data, nil
}

func (c *BlobClient) Close() {
	c.client.Close()
}
