package ident

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewViewIDStable(t *testing.T) {
	r := require.New(t)
	a := NewViewID("/warehouse/orders", "fp-1")
	b := NewViewID("/warehouse/orders", "fp-1")
	r.Equal(a, b)
	r.False(a.IsZero())
}

func TestNewViewIDDistinguishesInputs(t *testing.T) {
	r := require.New(t)
	a := NewViewID("/warehouse/orders", "fp-1")
	b := NewViewID("/warehouse/orders", "fp-2")
	c := NewViewID("/warehouse/customers", "fp-1")
	r.NotEqual(a, b)
	r.NotEqual(a, c)
}

func TestParseViewIDRoundTrip(t *testing.T) {
	r := require.New(t)
	a := NewViewID("/warehouse/orders", "fp-1")
	parsed, err := ParseViewID(a.Raw())
	r.NoError(err)
	r.Equal(a, parsed)
}

func TestParseViewIDRejectsEmpty(t *testing.T) {
	r := require.New(t)
	_, err := ParseViewID("")
	r.Error(err)
}
