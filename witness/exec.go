package witness

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/celo-org/op-succinct/preimage"
)

// File descriptors the spawned client program reads its channels from,
// numbered after stdin, stdout and stderr.
const (
	hClientRFd = 3
	hClientWFd = 4
	pClientRFd = 5
	pClientWFd = 6
	maxFd      = 7
)

// ExecGenerator runs the client program as a subprocess, handing it the
// channel client halves as inherited file descriptors. The generator sits
// between the subprocess and the host channels so the witness can record the
// full preimage and hint traffic.
type ExecGenerator struct {
	logger log.Logger
	binary string
	args   []string
}

var _ Generator = (*ExecGenerator)(nil)

func NewExecGenerator(logger log.Logger, binary string, args ...string) *ExecGenerator {
	return &ExecGenerator{logger: logger, binary: binary, args: args}
}

func (g *ExecGenerator) Run(ctx context.Context, preimageChan preimage.FileChannel, hintChan preimage.FileChannel) (*Data, error) {
	data := NewData()
	pSub, pLocal, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to create subprocess preimage channel: %w", err)
	}
	defer pLocal.Close()
	hSub, hLocal, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		pSub.Close()
		return nil, fmt.Errorf("failed to create subprocess hint channel: %w", err)
	}
	defer hLocal.Close()

	cmd := exec.CommandContext(ctx, g.binary, g.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = make([]*os.File, maxFd-3)
	cmd.ExtraFiles[hClientRFd-3] = hSub.Reader()
	cmd.ExtraFiles[hClientWFd-3] = hSub.Writer()
	cmd.ExtraFiles[pClientRFd-3] = pSub.Reader()
	cmd.ExtraFiles[pClientWFd-3] = pSub.Writer()

	g.logger.Info("Starting witness program", "binary", g.binary)
	if err := cmd.Start(); err != nil {
		pSub.Close()
		hSub.Close()
		return nil, fmt.Errorf("failed to start witness program: %w", err)
	}
	// The subprocess holds its own copies now. Closing ours makes the proxy
	// loops observe EOF when the subprocess exits.
	pSub.Close()
	hSub.Close()

	var eg errgroup.Group
	eg.Go(func() error {
		return proxyPreimages(pLocal, preimageChan, data)
	})
	eg.Go(func() error {
		return proxyHints(hLocal, hintChan, data)
	})

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("witness program failed: %w", err)
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("witness recording failed: %w", err)
	}
	g.logger.Debug("Witness program completed", "preimages", len(data.Preimages), "hints", len(data.Hints))
	return data, nil
}

// proxyPreimages forwards preimage requests from the subprocess to the host
// channel and responses back, recording each served preimage.
func proxyPreimages(sub io.ReadWriter, host io.ReadWriter, data *Data) error {
	for {
		var key common.Hash
		if _, err := io.ReadFull(sub, key[:]); err != nil {
			if isChannelClosed(err) {
				return nil
			}
			return fmt.Errorf("failed to read key from witness program: %w", err)
		}
		if _, err := host.Write(key[:]); err != nil {
			return fmt.Errorf("failed to forward key %s: %w", key, err)
		}
		var length uint64
		if err := binary.Read(host, binary.BigEndian, &length); err != nil {
			return fmt.Errorf("failed to read response length for key %s: %w", key, err)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(host, payload); err != nil {
			return fmt.Errorf("failed to read response for key %s: %w", key, err)
		}
		data.Preimages[key] = payload
		if err := binary.Write(sub, binary.BigEndian, length); err != nil {
			return fmt.Errorf("failed to forward response length for key %s: %w", key, err)
		}
		if _, err := sub.Write(payload); err != nil {
			return fmt.Errorf("failed to forward response for key %s: %w", key, err)
		}
	}
}

// proxyHints forwards hints from the subprocess and acks back, recording each
// hint in order.
func proxyHints(sub io.ReadWriter, host io.ReadWriter, data *Data) error {
	for {
		var length uint32
		if err := binary.Read(sub, binary.BigEndian, &length); err != nil {
			if isChannelClosed(err) {
				return nil
			}
			return fmt.Errorf("failed to read hint from witness program: %w", err)
		}
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(sub, payload); err != nil {
				return fmt.Errorf("failed to read hint data: %w", err)
			}
		}
		data.Hints = append(data.Hints, string(payload))
		var msg []byte
		msg = binary.BigEndian.AppendUint32(msg, length)
		msg = append(msg, payload...)
		if _, err := host.Write(msg); err != nil {
			return fmt.Errorf("failed to forward hint: %w", err)
		}
		ack := []byte{0}
		if _, err := io.ReadFull(host, ack); err != nil {
			return fmt.Errorf("failed to read hint ack: %w", err)
		}
		if _, err := sub.Write(ack); err != nil {
			return fmt.Errorf("failed to forward hint ack: %w", err)
		}
	}
}

func isChannelClosed(err error) bool {
	return err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, fs.ErrClosed)
}
