package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/celo-org/op-succinct/host"
	"github.com/celo-org/op-succinct/host/celestia"
	"github.com/celo-org/op-succinct/host/fetcher"
	"github.com/celo-org/op-succinct/host/single"
	"github.com/celo-org/op-succinct/metrics"
	"github.com/celo-org/op-succinct/oplog"
	"github.com/celo-org/op-succinct/rollup"
	"github.com/celo-org/op-succinct/witness"
)

var (
	GitCommit = ""
	GitDate   = ""
	Version   = "v0.1.0"
)

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "witnessgen"
	app.Usage = "Witness Generation Service"
	app.Description = "Generates execution witnesses for rollup validity proofs"
	app.Flags = append(Flags, oplog.CLIFlags(EnvVarPrefix)...)
	app.Action = WitnessGen
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func WitnessGen(cliCtx *cli.Context) error {
	if err := CheckRequired(cliCtx); err != nil {
		return err
	}
	logCfg, err := oplog.ReadCLIConfig(cliCtx)
	if err != nil {
		return err
	}
	logger := oplog.NewLogger(os.Stderr, logCfg)
	oplog.SetGlobalLogHandler(logCfg.Handler(os.Stderr))
	logger.Info("Starting witness generator", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := rollup.LoadConfig(cliCtx.String(RollupConfigFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load rollup config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return fmt.Errorf("invalid rollup config: %w", err)
	}

	f, err := fetcher.NewFetcher(ctx, logger, cfg, cliCtx.String(L1NodeAddr.Name), cliCtx.String(L2NodeAddr.Name), cliCtx.String(RollupNodeAddr.Name))
	if err != nil {
		return err
	}
	defer f.Close()

	generator := witness.NewExecGenerator(logger, cliCtx.String(ClientBinaryFlag.Name))
	h, err := buildHost(ctx, logger, cliCtx, cfg, f, generator)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	if cliCtx.Bool(MetricsEnabledFlag.Name) {
		addr, port := cliCtx.String(MetricsAddrFlag.Name), cliCtx.Int(MetricsPortFlag.Name)
		logger.Info("Starting metrics server", "addr", addr, "port", port)
		go func() {
			if err := m.Serve(addr, port); err != nil {
				logger.Error("Metrics server failed", "err", err)
			}
		}()
	}

	var l1Head *common.Hash
	if cliCtx.IsSet(L1HeadFlag.Name) {
		head := common.HexToHash(cliCtx.String(L1HeadFlag.Name))
		if head == (common.Hash{}) {
			return fmt.Errorf("invalid l1 head hash: %s", cliCtx.String(L1HeadFlag.Name))
		}
		l1Head = &head
	}

	l2Start, l2End := cliCtx.Uint64(L2StartFlag.Name), cliCtx.Uint64(L2EndFlag.Name)
	args, err := h.Fetch(ctx, l2Start, l2End, l1Head, cliCtx.Bool(SafeDBFallbackFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to resolve run inputs: %w", err)
	}

	m.RunsStarted.Inc()
	started := time.Now()
	data, err := host.Run(ctx, logger, h, args)
	m.RecordRun(time.Since(started), err)
	if err != nil {
		return err
	}
	m.PreimageCount.Observe(float64(len(data.Preimages)))
	m.HintCount.Observe(float64(len(data.Hints)))

	enc, err := data.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize witness: %w", err)
	}
	output := cliCtx.String(OutputFlag.Name)
	if err := os.WriteFile(output, enc, 0o644); err != nil {
		return fmt.Errorf("failed to write witness: %w", err)
	}
	logger.Info("Witness written", "file", output, "preimages", len(data.Preimages), "hints", len(data.Hints), "duration", time.Since(started))
	return nil
}

func buildHost(ctx context.Context, logger log.Logger, cliCtx *cli.Context, cfg *rollup.Config, f *fetcher.Fetcher, generator witness.Generator) (host.Host, error) {
	switch backend := cliCtx.String(DABackendFlag.Name); backend {
	case BackendEth:
		return single.NewHost(logger, f, generator), nil
	case BackendCelestia:
		l1Client, err := ethclient.DialContext(ctx, cliCtx.String(L1NodeAddr.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to dial L1 RPC: %w", err)
		}
		blobstream, err := celestia.NewBlobstreamClient(
			logger,
			common.HexToAddress(cliCtx.String(BlobstreamAddrFlag.Name)),
			l1Client,
			cliCtx.Uint64(BlobstreamDeployBlockFlag.Name),
		)
		if err != nil {
			return nil, err
		}
		blobs, err := celestia.NewBlobClient(ctx, cliCtx.String(CelestiaRPCFlag.Name), cliCtx.String(CelestiaAuthTokenFlag.Name), cliCtx.String(CelestiaNamespaceFlag.Name))
		if err != nil {
			return nil, err
		}
		index := celestia.NewInboxIndex(logger, f)
		return celestia.NewHost(logger, f, generator, blobstream, blobs, index), nil
	default:
		return nil, fmt.Errorf("unknown da backend: %s", backend)
	}
}
