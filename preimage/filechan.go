package preimage

import (
	"fmt"
	"io"
	"os"
)

// FileChannel is a duplex channel endpoint backed by a pair of pipe files.
type FileChannel interface {
	io.ReadWriteCloser
	// Reader returns the file that can be read from.
	Reader() *os.File
	// Writer returns the file that can be written to.
	Writer() *os.File
}

type ReadWritePair struct {
	r *os.File
	w *os.File
}

// NewReadWritePair creates a new FileChannel that uses the given files.
func NewReadWritePair(r *os.File, w *os.File) *ReadWritePair {
	return &ReadWritePair{r: r, w: w}
}

func (rw *ReadWritePair) Read(p []byte) (int, error) {
	return rw.r.Read(p)
}

func (rw *ReadWritePair) Write(p []byte) (int, error) {
	return rw.w.Write(p)
}

func (rw *ReadWritePair) Reader() *os.File {
	return rw.r
}

func (rw *ReadWritePair) Writer() *os.File {
	return rw.w
}

func (rw *ReadWritePair) Close() error {
	if err := rw.r.Close(); err != nil {
		return err
	}
	return rw.w.Close()
}

// CreateBidirectionalChannel creates a pair of FileChannels that are connected
// to each other, one for each side of the channel. Allocation failure is a
// setup error; the pair is created fresh per run and never reused.
func CreateBidirectionalChannel() (FileChannel, FileChannel, error) {
	ar, bw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	br, aw, err := os.Pipe()
	if err != nil {
		ar.Close()
		bw.Close()
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	return NewReadWritePair(ar, aw), NewReadWritePair(br, bw), nil
}
