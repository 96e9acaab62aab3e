package preimage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HintHandler processes hints received by the host side.
type HintHandler func(hint string) error

// HintWriter is the client side of the hint protocol: a big-endian uint32
// length prefix, the hint payload, then a blocking wait for a single ack byte.
// The ack ensures the host has processed the hint before the client issues the
// preimage requests the hint was prefetching for.
type HintWriter struct {
	rw io.ReadWriter
}

var _ Hinter = (*HintWriter)(nil)

func NewHintWriter(rw io.ReadWriter) *HintWriter {
	return &HintWriter{rw: rw}
}

func (hw *HintWriter) Hint(v Hint) {
	hint := v.Hint()
	var hintBytes []byte
	hintBytes = binary.BigEndian.AppendUint32(hintBytes, uint32(len(hint)))
	hintBytes = append(hintBytes, []byte(hint)...)
	if _, err := hw.rw.Write(hintBytes); err != nil {
		panic(fmt.Errorf("failed to write pre-image hint: %w", err))
	}
	if _, err := hw.rw.Read([]byte{0}); err != nil {
		panic(fmt.Errorf("failed to read pre-image hint ack: %w", err))
	}
}

// HintReader is the host side of the hint protocol.
type HintReader struct {
	rw io.ReadWriter
}

func NewHintReader(rw io.ReadWriter) *HintReader {
	return &HintReader{rw: rw}
}

// NextHint reads the next hint, routes it to the handler, and acks it.
// It returns io.EOF once the client side of the channel is closed.
func (hr *HintReader) NextHint(router HintHandler) error {
	var length uint32
	if err := binary.Read(hr.rw, binary.BigEndian, &length); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("failed to read hint length prefix: %w", err)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(hr.rw, payload); err != nil {
			return fmt.Errorf("failed to read hint data: %w", err)
		}
	}
	if err := router(string(payload)); err != nil {
		// Write an ack to the client, even if the hint failed, to avoid
		// blocking the client on the routing outcome.
		if _, ackErr := hr.rw.Write([]byte{0}); ackErr != nil {
			return fmt.Errorf("failed to ack hint %q after routing error %w: %w", string(payload), err, ackErr)
		}
		return fmt.Errorf("failed to handle hint: %w", err)
	}
	if _, err := hr.rw.Write([]byte{0}); err != nil {
		return fmt.Errorf("failed to ack hint: %w", err)
	}
	return nil
}

// rawHint is a hint forwarded without interpretation.
type rawHint string

func (rh rawHint) Hint() string {
	return string(rh)
}

// RawHint wraps an already rendered hint string.
func RawHint(hint string) Hint {
	return rawHint(hint)
}
