package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "OP_SUCCINCT"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

const (
	BackendEth      = "eth"
	BackendCelestia = "celestia"
)

var (
	RollupConfigFlag = &cli.StringFlag{
		Name:    "rollup.config",
		Usage:   "Path to the rollup chain parameters file",
		EnvVars: prefixEnvVars("ROLLUP_CONFIG"),
	}
	L1NodeAddr = &cli.StringFlag{
		Name:    "l1",
		Usage:   "Address of L1 JSON-RPC endpoint to use (eth namespace required)",
		EnvVars: prefixEnvVars("L1_RPC"),
	}
	L2NodeAddr = &cli.StringFlag{
		Name:    "l2",
		Usage:   "Address of L2 JSON-RPC endpoint to use (eth and debug namespace required)",
		EnvVars: prefixEnvVars("L2_RPC"),
	}
	RollupNodeAddr = &cli.StringFlag{
		Name:    "rollup.rpc",
		Usage:   "Address of the rollup node JSON-RPC endpoint to use",
		EnvVars: prefixEnvVars("ROLLUP_RPC"),
	}
	L2StartFlag = &cli.Uint64Flag{
		Name:    "l2.start",
		Usage:   "L2 block number of the agreed starting output root",
		EnvVars: prefixEnvVars("L2_START"),
	}
	L2EndFlag = &cli.Uint64Flag{
		Name:    "l2.end",
		Usage:   "L2 block number of the claimed output root",
		EnvVars: prefixEnvVars("L2_END"),
	}
	L1HeadFlag = &cli.StringFlag{
		Name:    "l1.head",
		Usage:   "Hash of the L1 head block to pin derivation to. Derived automatically when omitted",
		EnvVars: prefixEnvVars("L1_HEAD"),
	}
	SafeDBFallbackFlag = &cli.BoolFlag{
		Name:    "safe-db-fallback",
		Usage:   "Allow timestamp-based L1 head estimation when the rollup node has no safe-head database. Degrades accuracy",
		EnvVars: prefixEnvVars("SAFE_DB_FALLBACK"),
	}
	ClientBinaryFlag = &cli.StringFlag{
		Name:    "client",
		Usage:   "Path to the client program binary to generate the witness with",
		EnvVars: prefixEnvVars("CLIENT"),
	}
	OutputFlag = &cli.StringFlag{
		Name:    "output",
		Usage:   "File to write the witness to",
		Value:   "witness.json",
		EnvVars: prefixEnvVars("OUTPUT"),
	}
	DABackendFlag = &cli.StringFlag{
		Name:    "da.backend",
		Usage:   fmt.Sprintf("Data availability backend. Supported: %s, %s", BackendEth, BackendCelestia),
		Value:   BackendEth,
		EnvVars: prefixEnvVars("DA_BACKEND"),
	}
	CelestiaRPCFlag = &cli.StringFlag{
		Name:    "celestia.rpc",
		Usage:   "Address of the DA light node RPC endpoint",
		EnvVars: prefixEnvVars("CELESTIA_RPC"),
	}
	CelestiaAuthTokenFlag = &cli.StringFlag{
		Name:    "celestia.auth-token",
		Usage:   "Auth token for the DA light node",
		EnvVars: prefixEnvVars("CELESTIA_AUTH_TOKEN"),
	}
	CelestiaNamespaceFlag = &cli.StringFlag{
		Name:    "celestia.namespace",
		Usage:   "Hex-encoded namespace id the batches are posted under",
		EnvVars: prefixEnvVars("CELESTIA_NAMESPACE"),
	}
	BlobstreamAddrFlag = &cli.StringFlag{
		Name:    "celestia.blobstream-address",
		Usage:   "Address of the Blobstream bridge contract on L1",
		EnvVars: prefixEnvVars("CELESTIA_BLOBSTREAM_ADDRESS"),
	}
	BlobstreamDeployBlockFlag = &cli.Uint64Flag{
		Name:    "celestia.blobstream-deploy-block",
		Usage:   "L1 block the Blobstream bridge contract was deployed at, lower bound for event scans",
		EnvVars: prefixEnvVars("CELESTIA_BLOBSTREAM_DEPLOY_BLOCK"),
	}
	MetricsEnabledFlag = &cli.BoolFlag{
		Name:    "metrics.enabled",
		Usage:   "Enable the metrics server",
		EnvVars: prefixEnvVars("METRICS_ENABLED"),
	}
	MetricsAddrFlag = &cli.StringFlag{
		Name:    "metrics.addr",
		Usage:   "Metrics listening address",
		Value:   "0.0.0.0",
		EnvVars: prefixEnvVars("METRICS_ADDR"),
	}
	MetricsPortFlag = &cli.IntFlag{
		Name:    "metrics.port",
		Usage:   "Metrics listening port",
		Value:   7300,
		EnvVars: prefixEnvVars("METRICS_PORT"),
	}
)

var requiredFlags = []cli.Flag{
	RollupConfigFlag,
	L1NodeAddr,
	L2NodeAddr,
	RollupNodeAddr,
	L2StartFlag,
	L2EndFlag,
	ClientBinaryFlag,
}

var optionalFlags = []cli.Flag{
	L1HeadFlag,
	SafeDBFallbackFlag,
	OutputFlag,
	DABackendFlag,
	CelestiaRPCFlag,
	CelestiaAuthTokenFlag,
	CelestiaNamespaceFlag,
	BlobstreamAddrFlag,
	BlobstreamDeployBlockFlag,
	MetricsEnabledFlag,
	MetricsAddrFlag,
	MetricsPortFlag,
}

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

func init() {
	Flags = append(Flags, requiredFlags...)
	Flags = append(Flags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	if ctx.String(DABackendFlag.Name) == BackendCelestia {
		for _, f := range []cli.Flag{CelestiaRPCFlag, CelestiaNamespaceFlag, BlobstreamAddrFlag} {
			if !ctx.IsSet(f.Names()[0]) {
				return fmt.Errorf("flag %s is required with the %s backend", f.Names()[0], BackendCelestia)
			}
		}
	}
	return nil
}
