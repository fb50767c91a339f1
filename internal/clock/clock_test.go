package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMax(t *testing.T) {
	r := require.New(t)
	r.Equal(Timestamp(200), Max(100, 200))
	r.Equal(Timestamp(200), Max(200, 100))
	r.Equal(Zero, Max(Zero, Zero))
}

func TestBackoff(t *testing.T) {
	r := require.New(t)
	r.Equal(time.Duration(0), Backoff(0))
	r.Equal(2*time.Second, Backoff(1))
	r.Equal(4*time.Second, Backoff(2))
	r.Equal(8*time.Second, Backoff(3))
	r.Equal(32*time.Second, Backoff(5))
}
