package x402

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megalith-labs/x402-go/types"
)

func TestNewRequiresNetworks(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.CodeOf(err))
}

func TestNewRejectsBadDescriptor(t *testing.T) {
	_, err := New(Config{Networks: []types.Network{
		{ID: "base", ChainID: 0, RPCEndpoint: "https://mainnet.base.org"},
	}})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.CodeOf(err))
}
