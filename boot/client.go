package boot

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/celo-org/op-succinct/preimage"
	"github.com/celo-org/op-succinct/rollup"
)

type oracleClient interface {
	Get(key preimage.Key) []byte
}

// BootstrapClient reads the boot inputs back out of the preimage oracle on
// the client side of the channel.
type BootstrapClient struct {
	r oracleClient
}

func NewBootstrapClient(r oracleClient) *BootstrapClient {
	return &BootstrapClient{r: r}
}

func (br *BootstrapClient) BootInfo() *BootInfo {
	l1Head := common.BytesToHash(br.r.Get(L1HeadLocalIndex))
	l2OutputRoot := common.BytesToHash(br.r.Get(L2OutputRootLocalIndex))
	l2Claim := common.BytesToHash(br.r.Get(L2ClaimLocalIndex))
	l2ClaimBlockNumber := binary.BigEndian.Uint64(br.r.Get(L2ClaimBlockNumberLocalIndex))

	var rollupConfig rollup.Config
	if err := json.Unmarshal(br.r.Get(RollupConfigLocalIndex), &rollupConfig); err != nil {
		panic("failed to bootstrap rollup config")
	}

	return &BootInfo{
		L1Head:             l1Head,
		L2OutputRoot:       l2OutputRoot,
		L2Claim:            l2Claim,
		L2ClaimBlockNumber: l2ClaimBlockNumber,
		RollupConfig:       &rollupConfig,
	}
}
