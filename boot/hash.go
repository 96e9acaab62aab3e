package boot

import (
	sha256 "github.com/minio/sha256-simd"

	"github.com/ethereum/go-ethereum/common"

	"github.com/celo-org/op-succinct/rollup"
)

// HashRollupConfig digests the canonical rollup config document with SHA-256.
// The config is never unrolled on-chain, so the hash function only has to stay
// consistent with the config hash stored on the contract; it is a wire contract
// and must not be swapped without a coordinated upgrade on both sides.
func HashRollupConfig(cfg *rollup.Config) common.Hash {
	digest := sha256.Sum256(CanonicalRollupConfig(cfg))
	return common.Hash(digest)
}
