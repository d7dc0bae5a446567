//go:build !nvml

package devicehealth

import "fmt"

// New returns the no-op Monitor for mode "auto" or "false". mode "true"
// fails loudly rather than silently no-opping, since this build was
// never given the capability USE_NVML=true asks for.
func New(mode string) (Monitor, error) {
	if mode == "true" {
		return nil, fmt.Errorf("devicehealth: USE_NVML=true requires building with -tags nvml")
	}
	return noopMonitor{}, nil
}
