package backend

import (
	"fmt"

	"github.com/kunal/dualnet-batcher/pkg/devicehealth"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/kunal/dualnet-batcher/pkg/features"
)

// newAcceleratorFn indirects the "tf" engine's construction of each
// worker's execution context. Tests override it to observe the device id
// threaded into a worker pair without requiring a real ONNX Runtime
// build (-tags onnx).
var newAcceleratorFn = NewAccelerator

// BuildOptions carries the subset of config the factory needs, kept
// separate from the config package to avoid backend importing config
// (config has no reason to know about backend construction details).
type BuildOptions struct {
	Engine      string
	NumGPUs     int
	BoardSide   int
	ModelPath   string
	RemoteAddrs []string
	FakeValue   float64
	// FakePrior, when non-zero, is the constant prior assigned to every
	// move; zero defers to NewFake's numMoves-length uniform default.
	FakePrior float64
}

// Build selects and constructs the Backend named by opts.Engine (spec
// §4.5's factory selection), matching the literal engine names carried
// over from the original source's DEFINE_string(engine, ...): "remote",
// "tf", "lite", "trt", plus "fake" for the deterministic oracle. "tf",
// the reduced-precision variants, and "remote" with more than one
// endpoint own one execution context per device/endpoint and are
// fronted by a Dispatcher (spec §4.2); "fake" and single-endpoint
// "remote" have no pool to fan out across and are handed to the
// coordinator directly.
func Build(opts BuildOptions, mon devicehealth.Monitor) (dualnet.Backend, error) {
	numMoves := features.PolicySize(opts.BoardSide)
	planeSize := (2*dualnet.MoveHistory + 1) * opts.BoardSide * opts.BoardSide

	switch opts.Engine {
	case "fake":
		var priors dualnet.Policy
		if opts.FakePrior != 0 {
			priors = make(dualnet.Policy, numMoves)
			p := float32(opts.FakePrior)
			for i := range priors {
				priors[i] = p
			}
		}
		return NewFake(priors, opts.FakeValue, numMoves), nil

	case "remote":
		switch len(opts.RemoteAddrs) {
		case 0:
			return nil, fmt.Errorf("%w: engine \"remote\" requires REMOTE_ADDR", dualnet.ErrConfigInvalid)
		case 1:
			return NewRemote(opts.RemoteAddrs[0])
		default:
			// Multiple endpoints: fan out across them the same way a
			// device engine fans out across GPUs: two connections per
			// endpoint (spec §4.2's 2*D worker rule, D = len(RemoteAddrs)).
			addrs := opts.RemoteAddrs
			return NewDispatcher(len(addrs), func(deviceID int) (dualnet.Backend, error) {
				return NewRemote(addrs[deviceID])
			})
		}

	case "lite":
		devices := devicehealth.ResolveDeviceCount(opts.NumGPUs, mon)
		return NewDispatcher(devices, func(int) (dualnet.Backend, error) {
			return NewSimulated("lite", numMoves, 5, 32), nil
		})

	case "trt":
		devices := devicehealth.ResolveDeviceCount(opts.NumGPUs, mon)
		return NewDispatcher(devices, func(int) (dualnet.Backend, error) {
			return NewSimulated("trt", numMoves, 15, 128), nil
		})

	case "tf":
		if opts.ModelPath == "" {
			return nil, fmt.Errorf("%w: engine \"tf\" requires MODEL_PATH", dualnet.ErrConfigInvalid)
		}
		devices := devicehealth.ResolveDeviceCount(opts.NumGPUs, mon)
		return NewDispatcher(devices, func(deviceID int) (dualnet.Backend, error) {
			return newAcceleratorFn(opts.ModelPath, true, deviceID, planeSize, numMoves)
		})

	default:
		return nil, fmt.Errorf("%w: unknown engine %q", dualnet.ErrConfigInvalid, opts.Engine)
	}
}
