// Package gstkit provides a typed, concurrency-safe Go layer over a
// native GStreamer-style media engine (libgstshim).
//
// Key pieces include:
//   - Buffer/Frame with copy-on-write payload sharing across clones
//   - A generic pipeline builder (Pipe, From/Append/Finish) whose type
//     parameter tracks the media format flowing between stages
//   - Pipeline control (states, seeking, element properties) and a
//     filtered bus Watch for engine messages
//   - SampleStream, a pull-based bridge from the engine's push
//     callbacks with drop-oldest or unbounded delivery
//   - Device enumeration and camera/microphone sources
//   - RTP forwarding into pion/webrtc tracks
//
// # Architecture
//
//	Build:   From(source) -> Append(stages...) -> ToAppSink -> Descriptor
//	Run:     Descriptor.Launch(engine) -> Pipeline -> Play
//	Consume: Pipeline.Stream -> SampleStream.Next -> Frame (Clone to keep)
//	Observe: Pipeline.Bus().Watch(ctx, mask) -> MessageStream.Next
//
// # Native Libraries
//
// The production Engine loads libgstshim with purego (CGO_ENABLED=0).
// Set GSTKIT_LIB_PATH to the directory containing the library; the
// executable's directory, build/, and system paths are tried next.
// Everything above the Engine interface is pure Go, so tests and
// alternative backends run without the native library.
//
// # Build Tags
//
//   - nogst: compile without the native binding; OpenEngine returns an
//     error and callers must supply their own Engine.
package gstkit
