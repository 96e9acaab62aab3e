package prefetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celo-org/op-succinct/host/kvstore"
	"github.com/celo-org/op-succinct/preimage"
)

// ChainDataSource provides the raw chain data the prefetcher pulls in
// response to hints. Header and transaction payloads are the canonical binary
// encodings, so their keccak hashes double as their preimage keys.
type ChainDataSource interface {
	L1HeaderRLP(ctx context.Context, blockHash common.Hash) ([]byte, error)
	L1Transactions(ctx context.Context, blockHash common.Hash) ([][]byte, error)
	L1Receipts(ctx context.Context, blockHash common.Hash) ([][]byte, error)
	L2HeaderRLP(ctx context.Context, blockHash common.Hash) ([]byte, error)
	L2Transactions(ctx context.Context, blockHash common.Hash) ([][]byte, error)
	L2StateNode(ctx context.Context, nodeHash common.Hash) ([]byte, error)
	L2Code(ctx context.Context, codeHash common.Hash) ([]byte, error)
	L2OutputPreimage(ctx context.Context, outputRoot common.Hash) ([]byte, error)
}

// Prefetcher fills the KV store with preimages on demand. The client sends a
// hint naming the data it is about to request; the prefetcher only acts on
// the hint when a subsequent preimage request misses the store.
type Prefetcher struct {
	logger   log.Logger
	source   ChainDataSource
	kvStore  kvstore.KV
	lastHint string
}

func NewPrefetcher(logger log.Logger, source ChainDataSource, kvStore kvstore.KV) *Prefetcher {
	return &Prefetcher{
		logger:  logger,
		source:  source,
		kvStore: kvStore,
	}
}

func (p *Prefetcher) Hint(hint string) error {
	p.logger.Trace("Received hint", "hint", hint)
	p.lastHint = hint
	return nil
}

func (p *Prefetcher) GetPreimage(ctx context.Context, key common.Hash) ([]byte, error) {
	p.logger.Trace("Pre-image requested", "key", key)
	pre, err := p.kvStore.Get(key)
	if errors.Is(err, kvstore.ErrNotFound) && p.lastHint != "" {
		hint := p.lastHint
		if err := p.prefetch(ctx, hint); err != nil {
			return nil, fmt.Errorf("prefetch failed: %w", err)
		}
		// Should now be available.
		pre, err = p.kvStore.Get(key)
		if err != nil {
			return nil, fmt.Errorf("preimage not available even after prefetch: %w", err)
		}
	}
	return pre, err
}

func (p *Prefetcher) prefetch(ctx context.Context, hint string) error {
	hintType, hash, err := parseHint(hint)
	if err != nil {
		return err
	}
	p.logger.Debug("Prefetching", "type", hintType, "hash", hash)
	switch hintType {
	case HintL1BlockHeader:
		header, err := p.source.L1HeaderRLP(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L1 block %s header: %w", hash, err)
		}
		return p.store(header)
	case HintL1Transactions:
		txs, err := p.source.L1Transactions(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L1 block %s txs: %w", hash, err)
		}
		return p.storeEach(txs)
	case HintL1Receipts:
		receipts, err := p.source.L1Receipts(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L1 block %s receipts: %w", hash, err)
		}
		return p.storeEach(receipts)
	case HintL2BlockHeader:
		header, err := p.source.L2HeaderRLP(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L2 block %s header: %w", hash, err)
		}
		return p.store(header)
	case HintL2Transactions:
		txs, err := p.source.L2Transactions(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L2 block %s txs: %w", hash, err)
		}
		return p.storeEach(txs)
	case HintL2StateNode:
		node, err := p.source.L2StateNode(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L2 state node %s: %w", hash, err)
		}
		return p.store(node)
	case HintL2Code:
		code, err := p.source.L2Code(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L2 contract code %s: %w", hash, err)
		}
		return p.store(code)
	case HintL2Output:
		output, err := p.source.L2OutputPreimage(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to fetch L2 output root %s preimage: %w", hash, err)
		}
		if crypto.Keccak256Hash(output) != hash {
			return fmt.Errorf("fetched L2 output preimage does not match root %s", hash)
		}
		return p.store(output)
	}
	return fmt.Errorf("unknown hint type: %v", hintType)
}

// store persists the value under its keccak-typed preimage key.
func (p *Prefetcher) store(value []byte) error {
	key := preimage.Keccak256Key(crypto.Keccak256Hash(value)).PreimageKey()
	return p.kvStore.Put(key, value)
}

func (p *Prefetcher) storeEach(values [][]byte) error {
	for _, value := range values {
		if err := p.store(value); err != nil {
			return err
		}
	}
	return nil
}

// parseHint parses a hint string in wire protocol format: <type> <hash>
func parseHint(hint string) (string, common.Hash, error) {
	hintType, hashStr, found := strings.Cut(hint, " ")
	if !found {
		return "", common.Hash{}, fmt.Errorf("unsupported hint: %s", hint)
	}
	hashBytes, err := hexutil.Decode(hashStr)
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("invalid hash: %v", hashStr)
	}
	if len(hashBytes) != common.HashLength {
		return "", common.Hash{}, fmt.Errorf("invalid hash length: %v", hashStr)
	}
	return hintType, common.BytesToHash(hashBytes), nil
}
