package drm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drm "github.com/NeowayLabs/drmplanes"
)

func TestHasDumbBuffer(t *testing.T) {
	requireCard(t)
	file, err := drm.OpenCard(0)
	require.NoError(t, err)
	defer file.Close()

	hasDumb := drm.HasDumbBuffer(file)
	if !knownCard {
		t.Logf("Card '%s' dumb buffers: %v", card.Name, hasDumb)
		return
	}
	assert.Equal(t, cardInfo.capabilities[drm.CapDumbBuffer] != 0, hasDumb,
		"Card '%s' dumb buffer support", card.Name)
}

func TestGetCap(t *testing.T) {
	requireCard(t)
	if !knownCard {
		t.Skipf("No capability table for card '%s'", card.Name)
	}
	file, err := drm.OpenCard(0)
	require.NoError(t, err)
	defer file.Close()

	for cap, capval := range cardInfo.capabilities {
		ccap, err := drm.GetCap(file, cap)
		require.NoError(t, err)
		assert.Equal(t, capval, ccap, "Capability %d differs", cap)
	}
}

func TestSetClientCapAtomic(t *testing.T) {
	requireCard(t)
	file, err := drm.OpenCard(0)
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, drm.SetClientCap(file, drm.ClientCapUniversalPlanes, 1))
	if err := drm.SetClientCap(file, drm.ClientCapAtomic, 1); err != nil {
		t.Logf("Card '%s' has no atomic mode setting: %v", card.Name, err)
	}
}
