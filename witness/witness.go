package witness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celo-org/op-succinct/preimage"
)

// Data is the witness payload handed to the proving engine: every preimage the
// client program consumed, keyed by its typed preimage key, and the hints it
// issued, in order. The boot inputs are part of the preimages, served under
// their local index keys. The payload is opaque to the orchestration layer.
type Data struct {
	Preimages map[common.Hash]hexutil.Bytes `json:"preimages"`
	Hints     []string                      `json:"hints"`
}

func NewData() *Data {
	return &Data{
		Preimages: make(map[common.Hash]hexutil.Bytes),
	}
}

// Marshal serializes the witness for the external proving engine.
func (d *Data) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Generator drives the client program against the client halves of the
// preimage and hint channels and produces the witness.
type Generator interface {
	Run(ctx context.Context, preimageChan preimage.FileChannel, hintChan preimage.FileChannel) (*Data, error)
}

// Program is the client-side program being witnessed. It retrieves all of its
// inputs through the oracle, prefixed by hints, and is expected to be
// deterministic.
type Program interface {
	Run(ctx context.Context, oracle preimage.Oracle, hinter preimage.Hinter) error
}

// ProgramGenerator runs a Program in-process while recording the full
// preimage and hint traffic into the witness.
type ProgramGenerator struct {
	logger  log.Logger
	program Program
}

var _ Generator = (*ProgramGenerator)(nil)

func NewProgramGenerator(logger log.Logger, program Program) *ProgramGenerator {
	return &ProgramGenerator{logger: logger, program: program}
}

func (g *ProgramGenerator) Run(ctx context.Context, preimageChan preimage.FileChannel, hintChan preimage.FileChannel) (data *Data, err error) {
	data = NewData()
	oracle := &recordingOracle{inner: preimage.NewOracleClient(preimageChan), data: data}
	hinter := &recordingHinter{inner: preimage.NewHintWriter(hintChan), data: data}

	// The oracle client panics on channel failure, which is the correct
	// behavior for a client running in its own process but must not take the
	// host down when the program runs in-process.
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("witness program failed: %v", r)
		}
	}()
	if err := g.program.Run(ctx, oracle, hinter); err != nil {
		return nil, fmt.Errorf("witness program: %w", err)
	}
	g.logger.Debug("Witness program completed", "preimages", len(data.Preimages), "hints", len(data.Hints))
	return data, nil
}

type recordingOracle struct {
	inner preimage.Oracle
	data  *Data
}

func (o *recordingOracle) Get(key preimage.Key) []byte {
	value := o.inner.Get(key)
	o.data.Preimages[key.PreimageKey()] = value
	return value
}

type recordingHinter struct {
	inner preimage.Hinter
	data  *Data
}

func (h *recordingHinter) Hint(v preimage.Hint) {
	h.data.Hints = append(h.data.Hints, v.Hint())
	h.inner.Hint(v)
}
