package host

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celo-org/op-succinct/preimage"
)

// ServerTask is a handle on a running preimage server. The server stops on
// its own once the client closes its channel halves; Abort forces it to stop
// by closing the host halves out from under it.
type ServerTask struct {
	cancel  context.CancelFunc
	stopped chan struct{}
	closers []io.Closer
	abort   sync.Once

	// err is written once by the server goroutine before stopped is closed.
	err error
}

// StartServerTask runs the given server function in a goroutine. The closers
// are the resources Abort must close to unblock the server's channel reads.
func StartServerTask(ctx context.Context, run func(ctx context.Context) error, closers ...io.Closer) *ServerTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &ServerTask{
		cancel:  cancel,
		stopped: make(chan struct{}),
		closers: closers,
	}
	go func() {
		t.err = run(ctx)
		close(t.stopped)
	}()
	return t
}

// Abort stops the server and waits for it to exit. Closing the channel halves
// is what actually unblocks the server, since a pipe read does not observe
// context cancellation. Safe to call more than once; later calls wait for the
// first to complete.
func (t *ServerTask) Abort(logger log.Logger) {
	t.abort.Do(func() {
		t.cancel()
		for _, c := range t.closers {
			_ = c.Close()
		}
		<-t.stopped
		if err := t.err; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Preimage server did not shut down cleanly", "err", err)
		}
	})
	<-t.stopped
}

// Wait blocks until the server has stopped and returns its exit error.
func (t *ServerTask) Wait() error {
	<-t.stopped
	return t.err
}

// RunPreimageServer reads hints and preimage requests from the given channels
// and processes those requests. It returns when the channels are closed by
// the client or when the context is cancelled.
func RunPreimageServer(ctx context.Context, logger log.Logger, preimageChannel, hintChannel preimage.FileChannel, getter preimage.PreimageGetter, hinter preimage.HintHandler) error {
	logger.Info("Starting preimage server")
	defer preimageChannel.Close()
	defer hintChannel.Close()
	serverDone := launchOracleServer(logger, preimageChannel, getter)
	hinterDone := routeHints(logger, hintChannel, hinter)

	select {
	case err := <-serverDone:
		return err
	case err := <-hinterDone:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down preimage server")
		return ctx.Err()
	}
}

func routeHints(logger log.Logger, hintChannel preimage.FileChannel, hinter preimage.HintHandler) chan error {
	chErr := make(chan error, 1)
	hintReader := preimage.NewHintReader(hintChannel)
	go func() {
		defer close(chErr)
		for {
			if err := hintReader.NextHint(hinter); err != nil {
				if err == io.EOF || errors.Is(err, fs.ErrClosed) {
					logger.Debug("Hint channel closed")
					return
				}
				logger.Error("Failed to process hint", "err", err)
				chErr <- err
				return
			}
		}
	}()
	return chErr
}

func launchOracleServer(logger log.Logger, preimageChannel preimage.FileChannel, getter preimage.PreimageGetter) chan error {
	chErr := make(chan error, 1)
	server := preimage.NewOracleServer(preimageChannel)
	go func() {
		defer close(chErr)
		for {
			if err := server.NextPreimageRequest(getter); err != nil {
				if err == io.EOF || errors.Is(err, fs.ErrClosed) {
					logger.Debug("Preimage channel closed")
					return
				}
				logger.Error("Failed to serve pre-image request", "err", err)
				chErr <- err
				return
			}
		}
	}()
	return chErr
}

// PreimageSourceSplitter routes preimage requests to a local or global source
// based on the key type.
type PreimageSourceSplitter struct {
	local  preimage.PreimageGetter
	global preimage.PreimageGetter
}

func NewPreimageSourceSplitter(local, global preimage.PreimageGetter) *PreimageSourceSplitter {
	return &PreimageSourceSplitter{
		local:  local,
		global: global,
	}
}

func (s *PreimageSourceSplitter) Get(key common.Hash) ([]byte, error) {
	if preimage.KeyType(key[0]) == preimage.LocalKeyType {
		return s.local(key)
	}
	return s.global(key)
}
