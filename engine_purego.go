//go:build (darwin || linux) && !nogst

package gstkit

// Production Engine binding over libgstshim, the C wrapper around the
// native media engine. The library is loaded with purego at runtime,
// so the package builds and cross-compiles with CGO_ENABLED=0.
//
// Library locations checked (in order):
//   - GSTKIT_LIB_PATH environment variable
//   - Next to the executable
//   - build/ under the working directory
//   - System library paths
//
// Build with -tags nogst to compile the package without the binding.

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	shimOnce    sync.Once
	shimHandle  uintptr
	shimInitErr error
)

// libgstshim function pointers
var (
	shimInit       func() int32
	shimVersion    func() uintptr
	shimLastError  func() uintptr
	shimStringFree func(s uintptr)

	shimParseLaunch  func(description string) uintptr
	shimPipelineFree func(p uintptr)
	shimSetState     func(p uintptr, state int32) int32
	shimGetState     func(p uintptr) int32

	shimBusTimedPopFiltered func(p uintptr, timeoutNs uint64, mask uint32) uintptr
	shimMessageKind         func(m uintptr) uint32
	shimMessageSource       func(m uintptr) uintptr
	shimMessageText         func(m uintptr) uintptr
	shimMessageDebug        func(m uintptr) uintptr
	shimMessageOldState     func(m uintptr) int32
	shimMessageNewState     func(m uintptr) int32
	shimMessagePercent      func(m uintptr) int32
	shimMessageFree         func(m uintptr)

	shimBufferAlloc func(size uint64) uintptr
	shimBufferMap   func(b uintptr, mode int32, outSize uintptr) uintptr
	shimBufferUnmap func(b uintptr)
	shimBufferFree  func(b uintptr)

	shimAppsinkSetCallback func(p uintptr, name string, cb uintptr, user uintptr) int32

	shimElementFactoryMake func(factory, name string) uintptr
	shimElementLink        func(src, dst uintptr) int32
	shimBinGetByName       func(p uintptr, name string) uintptr
	shimSetPropertyString  func(el uintptr, name, value string)
	shimSetPropertyInt     func(el uintptr, name string, value int64)
	shimSetPropertyBool    func(el uintptr, name string, value int32)
	shimSetPropertyDouble  func(el uintptr, name string, value float64)

	shimSeek          func(p uintptr, positionNs uint64, flags int32) int32
	shimQueryPosition func(p uintptr, outNs uintptr) int32
	shimQueryDuration func(p uintptr, outNs uintptr) int32

	shimDeviceMonitorNew       func() uintptr
	shimDeviceMonitorAddFilter func(m uintptr, class string)
	shimDeviceMonitorStart     func(m uintptr) int32
	shimDeviceMonitorStop      func(m uintptr)
	shimDeviceMonitorFree      func(m uintptr)
	shimDeviceCount            func(m uintptr) int32
	shimDeviceAt               func(m uintptr, index int32) uintptr
	shimDeviceDisplayName      func(d uintptr) uintptr
	shimDeviceClass            func(d uintptr) uintptr
	shimDeviceCaps             func(d uintptr) uintptr
	shimDeviceProperties       func(d uintptr) uintptr
	shimDeviceCreateElement    func(d uintptr, name string) uintptr
)

// OpenEngine loads libgstshim, initializes the engine runtime and
// returns the production Engine. The library is loaded once per
// process; subsequent calls reuse it.
func OpenEngine() (Engine, error) {
	if err := loadShim(); err != nil {
		return nil, err
	}
	return &shimEngine{}, nil
}

func loadShim() error {
	shimOnce.Do(func() {
		shimInitErr = loadShimLib()
		if shimInitErr == nil {
			if shimInit() != 0 {
				shimInitErr = shimError("engine initialization failed")
				return
			}
			logger().Debug("engine loaded", "version", goStringFromPtr(shimVersion()))
		}
	})
	return shimInitErr
}

func loadShimLib() error {
	var lastErr error
	for _, path := range shimLibraryPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			shimHandle = handle
			loadShimSymbols()
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libgstshim: %w", lastErr)
	}
	return errors.New("libgstshim not found in any standard location")
}

func loadShimSymbols() {
	purego.RegisterLibFunc(&shimInit, shimHandle, "gstshim_init")
	purego.RegisterLibFunc(&shimVersion, shimHandle, "gstshim_version")
	purego.RegisterLibFunc(&shimLastError, shimHandle, "gstshim_last_error")
	purego.RegisterLibFunc(&shimStringFree, shimHandle, "gstshim_string_free")

	purego.RegisterLibFunc(&shimParseLaunch, shimHandle, "gstshim_parse_launch")
	purego.RegisterLibFunc(&shimPipelineFree, shimHandle, "gstshim_pipeline_free")
	purego.RegisterLibFunc(&shimSetState, shimHandle, "gstshim_set_state")
	purego.RegisterLibFunc(&shimGetState, shimHandle, "gstshim_get_state")

	purego.RegisterLibFunc(&shimBusTimedPopFiltered, shimHandle, "gstshim_bus_timed_pop_filtered")
	purego.RegisterLibFunc(&shimMessageKind, shimHandle, "gstshim_message_kind")
	purego.RegisterLibFunc(&shimMessageSource, shimHandle, "gstshim_message_source")
	purego.RegisterLibFunc(&shimMessageText, shimHandle, "gstshim_message_text")
	purego.RegisterLibFunc(&shimMessageDebug, shimHandle, "gstshim_message_debug")
	purego.RegisterLibFunc(&shimMessageOldState, shimHandle, "gstshim_message_old_state")
	purego.RegisterLibFunc(&shimMessageNewState, shimHandle, "gstshim_message_new_state")
	purego.RegisterLibFunc(&shimMessagePercent, shimHandle, "gstshim_message_percent")
	purego.RegisterLibFunc(&shimMessageFree, shimHandle, "gstshim_message_free")

	purego.RegisterLibFunc(&shimBufferAlloc, shimHandle, "gstshim_buffer_alloc")
	purego.RegisterLibFunc(&shimBufferMap, shimHandle, "gstshim_buffer_map")
	purego.RegisterLibFunc(&shimBufferUnmap, shimHandle, "gstshim_buffer_unmap")
	purego.RegisterLibFunc(&shimBufferFree, shimHandle, "gstshim_buffer_free")

	purego.RegisterLibFunc(&shimAppsinkSetCallback, shimHandle, "gstshim_appsink_set_callback")

	purego.RegisterLibFunc(&shimElementFactoryMake, shimHandle, "gstshim_element_factory_make")
	purego.RegisterLibFunc(&shimElementLink, shimHandle, "gstshim_element_link")
	purego.RegisterLibFunc(&shimBinGetByName, shimHandle, "gstshim_bin_get_by_name")
	purego.RegisterLibFunc(&shimSetPropertyString, shimHandle, "gstshim_element_set_property_string")
	purego.RegisterLibFunc(&shimSetPropertyInt, shimHandle, "gstshim_element_set_property_int")
	purego.RegisterLibFunc(&shimSetPropertyBool, shimHandle, "gstshim_element_set_property_bool")
	purego.RegisterLibFunc(&shimSetPropertyDouble, shimHandle, "gstshim_element_set_property_double")

	purego.RegisterLibFunc(&shimSeek, shimHandle, "gstshim_seek")
	purego.RegisterLibFunc(&shimQueryPosition, shimHandle, "gstshim_query_position")
	purego.RegisterLibFunc(&shimQueryDuration, shimHandle, "gstshim_query_duration")

	purego.RegisterLibFunc(&shimDeviceMonitorNew, shimHandle, "gstshim_device_monitor_new")
	purego.RegisterLibFunc(&shimDeviceMonitorAddFilter, shimHandle, "gstshim_device_monitor_add_filter")
	purego.RegisterLibFunc(&shimDeviceMonitorStart, shimHandle, "gstshim_device_monitor_start")
	purego.RegisterLibFunc(&shimDeviceMonitorStop, shimHandle, "gstshim_device_monitor_stop")
	purego.RegisterLibFunc(&shimDeviceMonitorFree, shimHandle, "gstshim_device_monitor_free")
	purego.RegisterLibFunc(&shimDeviceCount, shimHandle, "gstshim_device_monitor_device_count")
	purego.RegisterLibFunc(&shimDeviceAt, shimHandle, "gstshim_device_monitor_device_at")
	purego.RegisterLibFunc(&shimDeviceDisplayName, shimHandle, "gstshim_device_display_name")
	purego.RegisterLibFunc(&shimDeviceClass, shimHandle, "gstshim_device_class")
	purego.RegisterLibFunc(&shimDeviceCaps, shimHandle, "gstshim_device_caps")
	purego.RegisterLibFunc(&shimDeviceProperties, shimHandle, "gstshim_device_properties")
	purego.RegisterLibFunc(&shimDeviceCreateElement, shimHandle, "gstshim_device_create_element")
}

// takeShimString copies a shim-owned C string and frees it.
func takeShimString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	s := goStringFromPtr(ptr)
	shimStringFree(ptr)
	return s
}

func shimError(op string) error {
	msg := takeShimString(shimLastError())
	if msg == "" {
		msg = "unknown engine error"
	}
	return fmt.Errorf("%s: %s", op, msg)
}

// Sample callbacks cross the FFI boundary through one process-wide
// trampoline; the user token selects the Go handler.
var (
	sampleMu       sync.Mutex
	sampleHandlers = map[uintptr]sampleEntry{}
	sampleToken    uintptr

	sampleCallback = sync.OnceValue(func() uintptr {
		return purego.NewCallback(sampleTrampoline)
	})
)

type sampleEntry struct {
	pipe PipelineHandle
	fn   SampleHandler
}

func sampleTrampoline(user, buffer, caps, size, pts, dts, dur uintptr) uintptr {
	sampleMu.Lock()
	entry, ok := sampleHandlers[user]
	sampleMu.Unlock()
	if !ok {
		// Handler uninstalled while the sample was in flight.
		shimBufferFree(buffer)
		return 0
	}
	entry.fn(EngineSample{
		Buffer:   BufferHandle(buffer),
		Size:     int(size),
		Caps:     goStringFromPtr(caps),
		PTS:      ClockTime(pts),
		DTS:      ClockTime(dts),
		Duration: ClockTime(dur),
	})
	return 0
}

// shimEngine implements Engine over the loaded libgstshim.
type shimEngine struct{}

func (e *shimEngine) Version() string {
	return goStringFromPtr(shimVersion())
}

func (e *shimEngine) Parse(description string) (PipelineHandle, error) {
	h := shimParseLaunch(description)
	if h == 0 {
		msg := takeShimString(shimLastError())
		if msg == "" {
			msg = "unknown parse error"
		}
		return 0, &ParseError{Description: description, Message: msg}
	}
	return PipelineHandle(h), nil
}

func (e *shimEngine) ReleasePipeline(p PipelineHandle) {
	sampleMu.Lock()
	for token, entry := range sampleHandlers {
		if entry.pipe == p {
			delete(sampleHandlers, token)
		}
	}
	sampleMu.Unlock()
	shimPipelineFree(uintptr(p))
}

func (e *shimEngine) SetState(p PipelineHandle, s State) error {
	if shimSetState(uintptr(p), int32(s)) != 0 {
		actual, _ := e.State(p)
		return &StateChangeError{Requested: s, Actual: actual}
	}
	return nil
}

func (e *shimEngine) State(p PipelineHandle) (State, error) {
	v := shimGetState(uintptr(p))
	if v < 0 {
		return StateNull, shimError("failed to query state")
	}
	return State(v), nil
}

func (e *shimEngine) PollMessage(p PipelineHandle, mask MessageKind, timeout time.Duration) (*Message, error) {
	m := shimBusTimedPopFiltered(uintptr(p), uint64(timeout.Nanoseconds()), uint32(mask))
	if m == 0 {
		return nil, nil
	}
	defer shimMessageFree(m)
	msg := &Message{
		Kind:   MessageKind(shimMessageKind(m)),
		Source: takeShimString(shimMessageSource(m)),
	}
	switch msg.Kind {
	case MessageError, MessageWarning, MessageInfo:
		msg.Text = takeShimString(shimMessageText(m))
		msg.Debug = takeShimString(shimMessageDebug(m))
	case MessageStateChanged:
		msg.OldState = State(shimMessageOldState(m))
		msg.NewState = State(shimMessageNewState(m))
	case MessageBuffering:
		msg.Percent = int(shimMessagePercent(m))
	}
	return msg, nil
}

func (e *shimEngine) InstallSampleHandler(p PipelineHandle, sinkName string, fn SampleHandler) error {
	sampleMu.Lock()
	sampleToken++
	token := sampleToken
	sampleHandlers[token] = sampleEntry{pipe: p, fn: fn}
	sampleMu.Unlock()

	if shimAppsinkSetCallback(uintptr(p), sinkName, sampleCallback(), token) != 0 {
		sampleMu.Lock()
		delete(sampleHandlers, token)
		sampleMu.Unlock()
		return shimError("failed to install sample handler for " + sinkName)
	}
	return nil
}

func (e *shimEngine) AllocateBuffer(size int) (BufferHandle, error) {
	h := shimBufferAlloc(uint64(size))
	if h == 0 {
		return 0, shimError("allocation refused")
	}
	return BufferHandle(h), nil
}

func (e *shimEngine) MapBuffer(b BufferHandle, mode MapMode) ([]byte, error) {
	var size uint64
	ptr := shimBufferMap(uintptr(b), int32(mode), uintptr(unsafe.Pointer(&size)))
	if ptr == 0 {
		return nil, shimError("map refused")
	}
	return bytesFromPtr(ptr, int(size)), nil
}

func (e *shimEngine) UnmapBuffer(b BufferHandle) {
	shimBufferUnmap(uintptr(b))
}

func (e *shimEngine) FreeBuffer(b BufferHandle) {
	shimBufferFree(uintptr(b))
}

func (e *shimEngine) CreateElement(factory, name string) (ElementHandle, bool) {
	h := shimElementFactoryMake(factory, name)
	return ElementHandle(h), h != 0
}

func (e *shimEngine) LinkElements(src, dst ElementHandle) error {
	if shimElementLink(uintptr(src), uintptr(dst)) != 0 {
		return shimError("failed to link elements")
	}
	return nil
}

func (e *shimEngine) ElementByName(p PipelineHandle, name string) (ElementHandle, bool) {
	h := shimBinGetByName(uintptr(p), name)
	return ElementHandle(h), h != 0
}

func (e *shimEngine) SetProperty(el ElementHandle, name string, value any) error {
	switch v := value.(type) {
	case string:
		shimSetPropertyString(uintptr(el), name, v)
	case bool:
		var b int32
		if v {
			b = 1
		}
		shimSetPropertyBool(uintptr(el), name, b)
	case int:
		shimSetPropertyInt(uintptr(el), name, int64(v))
	case int64:
		shimSetPropertyInt(uintptr(el), name, v)
	case float64:
		shimSetPropertyDouble(uintptr(el), name, v)
	default:
		return fmt.Errorf("unsupported property type %T for %q", value, name)
	}
	return nil
}

func (e *shimEngine) Seek(p PipelineHandle, to ClockTime, flags SeekFlags) error {
	if shimSeek(uintptr(p), uint64(to), int32(flags)) != 0 {
		return shimError("seek refused")
	}
	return nil
}

func (e *shimEngine) Position(p PipelineHandle) (ClockTime, bool) {
	var ns uint64
	if shimQueryPosition(uintptr(p), uintptr(unsafe.Pointer(&ns))) != 0 {
		return ClockTimeNone, false
	}
	return ClockTime(ns), true
}

func (e *shimEngine) Duration(p PipelineHandle) (ClockTime, bool) {
	var ns uint64
	if shimQueryDuration(uintptr(p), uintptr(unsafe.Pointer(&ns))) != 0 {
		return ClockTimeNone, false
	}
	return ClockTime(ns), true
}

// Devices enumerates through a short-lived device monitor. Device
// handles stay valid after the monitor is released; the shim retains
// them for the process lifetime.
func (e *shimEngine) Devices(classes DeviceClass) ([]DeviceInfo, error) {
	mon := shimDeviceMonitorNew()
	if mon == 0 {
		return nil, shimError("device monitor unavailable")
	}
	defer shimDeviceMonitorFree(mon)

	for _, class := range []DeviceClass{DeviceVideoSource, DeviceAudioSource, DeviceVideoSink, DeviceAudioSink} {
		if classes&class != 0 {
			shimDeviceMonitorAddFilter(mon, class.String())
		}
	}
	if shimDeviceMonitorStart(mon) != 0 {
		return nil, shimError("device monitor failed to start")
	}
	defer shimDeviceMonitorStop(mon)

	n := int(shimDeviceCount(mon))
	devs := make([]DeviceInfo, 0, n)
	for i := 0; i < n; i++ {
		d := shimDeviceAt(mon, int32(i))
		if d == 0 {
			continue
		}
		devs = append(devs, DeviceInfo{
			Handle:      DeviceHandle(d),
			DisplayName: takeShimString(shimDeviceDisplayName(d)),
			Class:       parseDeviceClass(takeShimString(shimDeviceClass(d))),
			Caps:        takeShimString(shimDeviceCaps(d)),
			Properties:  parseDeviceProperties(takeShimString(shimDeviceProperties(d))),
		})
	}
	return devs, nil
}

func (e *shimEngine) CreateDeviceElement(d DeviceHandle, name string) (ElementHandle, bool) {
	h := shimDeviceCreateElement(uintptr(d), name)
	return ElementHandle(h), h != 0
}

func parseDeviceClass(s string) DeviceClass {
	var c DeviceClass
	if strings.Contains(s, "Video/Source") || strings.Contains(s, "Source/Video") {
		c |= DeviceVideoSource
	}
	if strings.Contains(s, "Audio/Source") || strings.Contains(s, "Source/Audio") {
		c |= DeviceAudioSource
	}
	if strings.Contains(s, "Video/Sink") || strings.Contains(s, "Sink/Video") {
		c |= DeviceVideoSink
	}
	if strings.Contains(s, "Audio/Sink") || strings.Contains(s, "Sink/Audio") {
		c |= DeviceAudioSink
	}
	return c
}

// parseDeviceProperties parses the shim's newline-separated key=value
// property dump.
func parseDeviceProperties(s string) map[string]string {
	if s == "" {
		return nil
	}
	props := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		if key, value, ok := strings.Cut(line, "="); ok && key != "" {
			props[key] = value
		}
	}
	return props
}
