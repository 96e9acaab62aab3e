package kvstore

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemKV implements the KV store interface in memory, backed by a regular Go map.
// This should only be used in situations where the pre-image dataset is small
// and no persistence is required, such as witness generation for a single
// block range.
type MemKV struct {
	sync.RWMutex
	m map[common.Hash][]byte
}

var _ KV = (*MemKV)(nil)

// NewMemKV creates a new MemKV instance.
func NewMemKV() *MemKV {
	return &MemKV{m: make(map[common.Hash][]byte)}
}

func (kv *MemKV) Put(k common.Hash, v []byte) error {
	kv.Lock()
	defer kv.Unlock()
	kv.m[k] = v
	return nil
}

func (kv *MemKV) Get(k common.Hash) ([]byte, error) {
	kv.RLock()
	defer kv.RUnlock()
	v, ok := kv.m[k]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}
