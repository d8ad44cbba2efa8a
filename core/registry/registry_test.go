package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentLookupDeterministic(t *testing.T) {
	var r Content
	a, err := r.Lookup("HIK|hik1")
	require.NoError(t, err)
	b, err := r.Lookup("HIK|hik1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DigestLen)
}

func TestContentLookupDistinct(t *testing.T) {
	var r Content
	a, _ := r.Lookup("HIK|hik1")
	b, _ := r.Lookup("HIK|hik2")
	assert.NotEqual(t, a, b)
}
