package drm_test

import (
	"fmt"

	drm "github.com/NeowayLabs/drmplanes"
)

func ExampleHasDumbBuffer() {
	// This example shows how to test if your graphics card
	// supports 'dumb buffers' capability. With this capability
	// you can create simple memory-mapped buffers without any
	// driver-dependent code.

	file, err := drm.OpenCard(0)
	if err != nil {
		fmt.Printf("error: %s", err.Error())
		return
	}
	defer file.Close()
	if !drm.HasDumbBuffer(file) {
		fmt.Printf("drm device does not support dumb buffers")
		return
	}
	fmt.Printf("ok")
}

func ExampleSetClientCap() {
	// Atomic mode setting is opt-in per file descriptor. Planes other
	// than overlays are only visible with universal planes enabled.

	file, err := drm.Open(drm.DefaultCard)
	if err != nil {
		fmt.Printf("error: %s", err.Error())
		return
	}
	defer file.Close()
	if err := drm.SetClientCap(file, drm.ClientCapAtomic, 1); err != nil {
		fmt.Printf("no atomic support: %s", err.Error())
		return
	}
	fmt.Printf("ok")
}
