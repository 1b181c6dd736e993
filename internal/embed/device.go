package embed

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceKind names a compute target.
type DeviceKind string

const (
	CPU   DeviceKind = "cpu"
	CUDA  DeviceKind = "cuda"
	Metal DeviceKind = "metal"
)

// Device selects where a model runs. Ordinal picks the GPU for CUDA.
type Device struct {
	Kind    DeviceKind
	Ordinal int
}

// CPUDevice is the default device.
var CPUDevice = Device{Kind: CPU}

func (d Device) String() string {
	if d.Kind == "" {
		return string(CPU)
	}
	if d.Kind == CUDA && d.Ordinal > 0 {
		return fmt.Sprintf("cuda:%d", d.Ordinal)
	}
	return string(d.Kind)
}

// IsGPU reports whether d is an accelerator.
func (d Device) IsGPU() bool { return d.Kind == CUDA || d.Kind == Metal }

// ParseDevice accepts "cpu", "cuda", "cuda:N" and "metal". Empty means cpu.
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	kind, ord, hasOrd := strings.Cut(s, ":")
	switch DeviceKind(kind) {
	case "", CPU:
		if hasOrd {
			return Device{}, fmt.Errorf("device %q: cpu takes no ordinal", s)
		}
		return CPUDevice, nil
	case Metal:
		if hasOrd {
			return Device{}, fmt.Errorf("device %q: metal takes no ordinal", s)
		}
		return Device{Kind: Metal}, nil
	case CUDA:
		d := Device{Kind: CUDA}
		if hasOrd {
			n, err := strconv.Atoi(ord)
			if err != nil || n < 0 {
				return Device{}, fmt.Errorf("device %q: bad ordinal", s)
			}
			d.Ordinal = n
		}
		return d, nil
	default:
		return Device{}, fmt.Errorf("unknown device %q", s)
	}
}
