package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVarWakesWaiter(t *testing.T) {
	r := require.New(t)

	var v Var[int]
	val, updated := v.Get()
	r.Equal(0, val)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-updated:
		case <-time.After(time.Second):
			t.Error("timed out waiting for update")
		}
	}()

	v.Set(42)
	<-done

	val, _ = v.Get()
	r.Equal(42, val)
}

func TestVarMultipleSets(t *testing.T) {
	r := require.New(t)

	var v Var[string]
	v.Set("a")
	v.Set("b")
	val, _ := v.Get()
	r.Equal("b", val)
}
