// Device discovery over the engine's device monitor, plus source
// stages backed by discovered devices.
package gstkit

import (
	"errors"
	"strings"
)

// ErrDeviceUnavailable is returned when no device matches a request.
// An empty enumeration is not an error; asking for a default device
// when none exists is.
var ErrDeviceUnavailable = errors.New("no matching device available")

// DeviceClass classifies devices. Classes are bit flags so they
// compose into enumeration masks.
type DeviceClass int

const (
	DeviceVideoSource DeviceClass = 1 << iota // Cameras
	DeviceAudioSource                         // Microphones
	DeviceVideoSink                           // Displays
	DeviceAudioSink                           // Speakers
)

func (c DeviceClass) String() string {
	var parts []string
	if c&DeviceVideoSource != 0 {
		parts = append(parts, "Video/Source")
	}
	if c&DeviceAudioSource != 0 {
		parts = append(parts, "Audio/Source")
	}
	if c&DeviceVideoSink != 0 {
		parts = append(parts, "Video/Sink")
	}
	if c&DeviceAudioSink != 0 {
		parts = append(parts, "Audio/Sink")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// DeviceInfo describes one device the engine's monitor reported.
type DeviceInfo struct {
	Handle      DeviceHandle      // Engine token for this device
	DisplayName string            // Human-readable device name
	Class       DeviceClass       // Device class
	Caps        string            // Serialized caps the device produces
	Properties  map[string]string // Engine-reported properties, e.g. "device.path"
}

// CreateElement instantiates a source element bound to this device.
// A device that cannot produce one reports ok=false, not an error.
func (d DeviceInfo) CreateElement(eng Engine, name string) (ElementHandle, bool) {
	return eng.CreateDeviceElement(d.Handle, name)
}

// Devices enumerates devices matching the class mask. An empty result
// is a normal outcome.
func Devices(eng Engine, classes DeviceClass) ([]DeviceInfo, error) {
	return eng.Devices(classes)
}

// DefaultCamera returns the first camera the engine reports.
func DefaultCamera(eng Engine) (DeviceInfo, error) {
	return firstDevice(eng, DeviceVideoSource)
}

// DefaultMicrophone returns the first microphone the engine reports.
func DefaultMicrophone(eng Engine) (DeviceInfo, error) {
	return firstDevice(eng, DeviceAudioSource)
}

func firstDevice(eng Engine, class DeviceClass) (DeviceInfo, error) {
	devs, err := Devices(eng, class)
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(devs) == 0 {
		return DeviceInfo{}, ErrDeviceUnavailable
	}
	return devs[0], nil
}

// CameraSource builds a typed source stage from the default camera,
// requesting exactly the given layout. If the camera cannot satisfy
// it, the launched pipeline fails to negotiate; see CameraSourceAny
// for the relaxed alternative.
func CameraSource[F VideoFormat](eng Engine, v Video[F]) (SourceStage[Video[F]], error) {
	d, err := DefaultCamera(eng)
	if err != nil {
		return SourceStage[Video[F]]{}, err
	}
	return Source(v, deviceSegment(d)), nil
}

// CameraSourceAny builds an untyped source stage from the default
// camera, leaving the layout entirely to engine negotiation.
func CameraSourceAny(eng Engine) (SourceStage[RawMedia], error) {
	d, err := DefaultCamera(eng)
	if err != nil {
		return SourceStage[RawMedia]{}, err
	}
	return Source(RawMedia{}, deviceSegment(d)), nil
}

// MicrophoneSource builds a typed source stage from the default
// microphone.
func MicrophoneSource[F AudioFormat](eng Engine, a Audio[F]) (SourceStage[Audio[F]], error) {
	d, err := DefaultMicrophone(eng)
	if err != nil {
		return SourceStage[Audio[F]]{}, err
	}
	return Source(a, deviceSegment(d)), nil
}

// deviceSegment renders the launch text for a device. Devices exposing
// a path get a concrete element; everything else falls back to the
// engine's auto source.
func deviceSegment(d DeviceInfo) string {
	path := d.Properties["device.path"]
	switch {
	case d.Class&DeviceVideoSource != 0:
		if path != "" {
			return formatSegment("v4l2src", []Prop{{Name: "device", Value: path}})
		}
		return "autovideosrc"
	case d.Class&DeviceAudioSource != 0:
		if path != "" {
			return formatSegment("alsasrc", []Prop{{Name: "device", Value: path}})
		}
		return "autoaudiosrc"
	default:
		return "autovideosrc"
	}
}
