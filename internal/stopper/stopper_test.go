package stopper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoAndStop(t *testing.T) {
	r := require.New(t)

	ctx := WithContext(context.Background())
	started := make(chan struct{})
	ctx.Go(func() error {
		close(started)
		<-ctx.Stopping()
		return nil
	})

	<-started
	errs := ctx.Stop(time.Second)
	r.Empty(errs)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be canceled after Stop")
	}
}

func TestStopCollectsErrors(t *testing.T) {
	r := require.New(t)

	ctx := WithContext(context.Background())
	sentinel := errors.New("boom")
	ctx.Go(func() error { return sentinel })

	// Allow the goroutine a moment to run before stopping.
	time.Sleep(10 * time.Millisecond)
	errs := ctx.Stop(time.Second)
	r.Len(errs, 1)
	r.ErrorIs(errs[0], sentinel)
}
