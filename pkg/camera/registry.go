// Package camera provides the registry of named camera profiles used to
// parameterize altitude calculations.
package camera

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/video-altitude/pkg/geometry"
)

// ErrUnknownCamera is returned by Lookup when no profile has the given name.
var ErrUnknownCamera = errors.New("unknown camera")

// Registry is an ordered, read-only set of camera profiles.
type Registry struct {
	profiles []geometry.CameraProfile
	index    map[string]int
}

// NewRegistry copies profiles into a new registry. Names must be non-empty
// and unique.
func NewRegistry(profiles ...geometry.CameraProfile) (*Registry, error) {
	r := &Registry{
		profiles: make([]geometry.CameraProfile, 0, len(profiles)),
		index:    make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("camera profile at position %d has no name", len(r.profiles))
		}
		if _, dup := r.index[p.Name]; dup {
			return nil, fmt.Errorf("duplicate camera profile %q", p.Name)
		}
		r.index[p.Name] = len(r.profiles)
		r.profiles = append(r.profiles, clone(p))
	}
	return r, nil
}

// Default returns a registry holding DefaultProfiles.
func Default() *Registry {
	r, err := NewRegistry(DefaultProfiles()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the profile registered under name. Matching is exact.
func (r *Registry) Lookup(name string) (geometry.CameraProfile, error) {
	i, ok := r.index[name]
	if !ok {
		return geometry.CameraProfile{}, fmt.Errorf("%w: %q (options: %s)", ErrUnknownCamera, name, strings.Join(r.Names(), ", "))
	}
	return clone(r.profiles[i]), nil
}

// Names returns the profile names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		names[i] = p.Name
	}
	return names
}

// Profiles returns copies of all profiles in registration order.
func (r *Registry) Profiles() []geometry.CameraProfile {
	out := make([]geometry.CameraProfile, len(r.profiles))
	for i, p := range r.profiles {
		out[i] = clone(p)
	}
	return out
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	return len(r.profiles)
}

// With returns a new registry with extra profiles appended. The receiver is
// left untouched.
func (r *Registry) With(extra ...geometry.CameraProfile) (*Registry, error) {
	all := append(r.Profiles(), extra...)
	return NewRegistry(all...)
}

// Custom builds a caller-supplied profile. Focal length must be positive;
// the sensor width may be zero (unknown) but not negative; fov is optional.
func Custom(name string, focalLengthMM, sensorWidthMM float64, fovDeg *float64, widthPx, heightPx int) (geometry.CameraProfile, error) {
	if strings.TrimSpace(name) == "" {
		name = "Custom"
	}
	if !finite(focalLengthMM) || focalLengthMM <= 0 {
		return geometry.CameraProfile{}, &geometry.FieldError{
			Kind: geometry.ErrInvalidCameraProfile, Field: "focal_length_mm", Value: focalLengthMM, Reason: "must be > 0",
		}
	}
	if !finite(sensorWidthMM) || sensorWidthMM < 0 {
		return geometry.CameraProfile{}, &geometry.FieldError{
			Kind: geometry.ErrInvalidCameraProfile, Field: "sensor_width_mm", Value: sensorWidthMM, Reason: "must be >= 0",
		}
	}
	if fovDeg != nil && (!finite(*fovDeg) || *fovDeg <= 0 || *fovDeg >= 180) {
		return geometry.CameraProfile{}, &geometry.FieldError{
			Kind: geometry.ErrInvalidCameraProfile, Field: "field_of_view_deg", Value: *fovDeg, Reason: "must be in (0, 180)",
		}
	}
	if widthPx < 0 || heightPx < 0 {
		return geometry.CameraProfile{}, &geometry.FieldError{
			Kind: geometry.ErrInvalidMeasurement, Field: "image_width_px", Value: float64(widthPx), Reason: "must be >= 0",
		}
	}
	return clone(geometry.CameraProfile{
		Name:           name,
		FocalLengthMM:  focalLengthMM,
		SensorWidthMM:  sensorWidthMM,
		FieldOfViewDeg: fovDeg,
		ImageWidthPx:   widthPx,
		ImageHeightPx:  heightPx,
	}), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clone detaches the FOV pointer so callers cannot reach registry state.
func clone(p geometry.CameraProfile) geometry.CameraProfile {
	if p.FieldOfViewDeg != nil {
		v := *p.FieldOfViewDeg
		p.FieldOfViewDeg = &v
	}
	return p
}
