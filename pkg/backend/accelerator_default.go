//go:build !onnx

package backend

import (
	"fmt"

	"github.com/kunal/dualnet-batcher/pkg/dualnet"
)

// Accelerator is the no-op stand-in used when the binary is built without
// -tags onnx. NewAccelerator fails fast rather than silently falling back
// to a simulated backend, so a misconfigured build tag is caught at
// startup instead of producing quietly wrong policies.
type Accelerator struct{ deviceID int }

func NewAccelerator(modelPath string, useGPU bool, deviceID, planeSize, numMoves int) (*Accelerator, error) {
	return nil, fmt.Errorf("dualnet: accelerator engine requires building with -tags onnx")
}

// DeviceID returns the physical device this execution context would be
// bound to; kept for interface parity with the onnx build.
func (a *Accelerator) DeviceID() int { return a.deviceID }

// Run, ModelID, and Close exist only to satisfy dualnet.Backend; a nil
// *Accelerator never reaches them since NewAccelerator always errors in
// this build.
func (a *Accelerator) Run([]dualnet.BoardFeatureVec) (dualnet.Result, error) {
	return dualnet.Result{}, fmt.Errorf("dualnet: accelerator engine requires building with -tags onnx")
}

func (a *Accelerator) ModelID() string { return "onnx:unavailable" }

func (a *Accelerator) Close() error { return nil }
