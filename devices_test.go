package gstkit

import (
	"errors"
	"strings"
	"testing"
)

func fakeCamera(path string) DeviceInfo {
	d := DeviceInfo{
		Handle:      1,
		DisplayName: "Integrated Camera",
		Class:       DeviceVideoSource,
		Caps:        "video/x-raw,format=YUY2,width=1280,height=720",
	}
	if path != "" {
		d.Properties = map[string]string{"device.path": path}
	}
	return d
}

func fakeMicrophone(path string) DeviceInfo {
	d := DeviceInfo{
		Handle:      2,
		DisplayName: "Built-in Audio",
		Class:       DeviceAudioSource,
	}
	if path != "" {
		d.Properties = map[string]string{"device.path": path}
	}
	return d
}

func TestDeviceClassString(t *testing.T) {
	tests := []struct {
		class DeviceClass
		want  string
	}{
		{DeviceVideoSource, "Video/Source"},
		{DeviceAudioSource, "Audio/Source"},
		{DeviceVideoSink, "Video/Sink"},
		{DeviceAudioSink, "Audio/Sink"},
		{DeviceVideoSource | DeviceAudioSource, "Video/Source+Audio/Source"},
		{0, "none"},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("String = %q, want %q", got, tt.want)
		}
	}
}

func TestDevicesFiltersByClass(t *testing.T) {
	e := newFakeEngine()
	e.devices = []DeviceInfo{fakeCamera("/dev/video0"), fakeMicrophone("hw:0")}

	cams, err := Devices(e, DeviceVideoSource)
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(cams) != 1 || cams[0].DisplayName != "Integrated Camera" {
		t.Errorf("cameras = %+v", cams)
	}

	all, err := Devices(e, DeviceVideoSource|DeviceAudioSource)
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d devices, want 2", len(all))
	}
}

func TestDevicesEmptyIsNotAnError(t *testing.T) {
	e := newFakeEngine()
	devs, err := Devices(e, DeviceVideoSource)
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devs) != 0 {
		t.Errorf("got %d devices, want 0", len(devs))
	}
}

func TestDefaultCamera(t *testing.T) {
	e := newFakeEngine()
	if _, err := DefaultCamera(e); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("DefaultCamera with no devices = %v, want ErrDeviceUnavailable", err)
	}

	e.devices = []DeviceInfo{fakeCamera("/dev/video0"), fakeCamera("/dev/video1")}
	d, err := DefaultCamera(e)
	if err != nil {
		t.Fatalf("DefaultCamera failed: %v", err)
	}
	if d.Properties["device.path"] != "/dev/video0" {
		t.Errorf("picked %+v, want the first camera", d)
	}
}

func TestDefaultMicrophone(t *testing.T) {
	e := newFakeEngine()
	e.devices = []DeviceInfo{fakeCamera("/dev/video0")}
	if _, err := DefaultMicrophone(e); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("DefaultMicrophone = %v, want ErrDeviceUnavailable", err)
	}

	e.devices = append(e.devices, fakeMicrophone("hw:0"))
	d, err := DefaultMicrophone(e)
	if err != nil {
		t.Fatalf("DefaultMicrophone failed: %v", err)
	}
	if d.Class != DeviceAudioSource {
		t.Errorf("picked %+v", d)
	}
}

func TestDeviceSegment(t *testing.T) {
	tests := []struct {
		name string
		dev  DeviceInfo
		want string
	}{
		{"camera with path", fakeCamera("/dev/video0"), "v4l2src device=/dev/video0"},
		{"camera without path", fakeCamera(""), "autovideosrc"},
		{"microphone with path", fakeMicrophone("hw:0"), "alsasrc device=hw:0"},
		{"microphone without path", fakeMicrophone(""), "autoaudiosrc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deviceSegment(tt.dev); got != tt.want {
				t.Errorf("deviceSegment = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCameraSource(t *testing.T) {
	e := newFakeEngine()
	e.devices = []DeviceInfo{fakeCamera("/dev/video0")}

	src, err := CameraSource(e, Video[NV12]{Width: 1280, Height: 720})
	if err != nil {
		t.Fatalf("CameraSource failed: %v", err)
	}
	d := ToAppSink(From(src))
	if !strings.HasPrefix(d.String(), "v4l2src device=/dev/video0 ! video/x-raw,format=NV12,width=1280,height=720 ! ") {
		t.Errorf("descriptor = %q", d)
	}
}

func TestCameraSourceAny(t *testing.T) {
	e := newFakeEngine()
	e.devices = []DeviceInfo{fakeCamera("")}

	src, err := CameraSourceAny(e)
	if err != nil {
		t.Fatalf("CameraSourceAny failed: %v", err)
	}
	p := From(src)
	if !p.Caps().IsEmpty() {
		t.Errorf("relaxed camera source should leave the layout open, got %q", p.Caps())
	}
	if d := ToDiscardSink(p); d.String() != "autovideosrc ! fakesink sync=false" {
		t.Errorf("descriptor = %q", d)
	}
}

func TestMicrophoneSource(t *testing.T) {
	e := newFakeEngine()
	e.devices = []DeviceInfo{fakeMicrophone("hw:1")}

	src, err := MicrophoneSource(e, Audio[S16]{Rate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("MicrophoneSource failed: %v", err)
	}
	d := ToDiscardSink(From(src))
	want := "alsasrc device=hw:1 ! audio/x-raw,format=S16LE,layout=interleaved,rate=16000,channels=1 ! fakesink sync=false"
	if d.String() != want {
		t.Errorf("descriptor = %q, want %q", d, want)
	}
}

func TestDeviceCreateElement(t *testing.T) {
	e := newFakeEngine()
	cam := fakeCamera("/dev/video0")

	if _, ok := cam.CreateElement(e, "cam0"); !ok {
		t.Error("CreateElement should succeed")
	}
	e.noDevElem = true
	if _, ok := cam.CreateElement(e, "cam0"); ok {
		t.Error("CreateElement should report ok=false when the engine cannot build one")
	}
}

func TestDevicesPropagatesEngineError(t *testing.T) {
	e := newFakeEngine()
	e.devErr = errors.New("monitor failed to start")
	if _, err := Devices(e, DeviceVideoSource); err == nil {
		t.Error("Devices should surface the engine's failure")
	}
	if _, err := DefaultCamera(e); err == nil {
		t.Error("DefaultCamera should surface the engine's failure")
	}
}
