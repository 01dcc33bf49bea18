// Stage constructors for the common engine elements. Each returns a
// typed stage descriptor; composition itself happens in builder.go.
package gstkit

import "fmt"

// TestPattern selects the image a test video source produces.
type TestPattern int

const (
	PatternSMPTE TestPattern = iota // SMPTE color bars
	PatternBall                     // Moving ball
	PatternSnow                     // Random noise
	PatternBlack                    // Solid black
	PatternWhite                    // Solid white
)

func (t TestPattern) String() string {
	switch t {
	case PatternSMPTE:
		return "smpte"
	case PatternBall:
		return "ball"
	case PatternSnow:
		return "snow"
	case PatternBlack:
		return "black"
	case PatternWhite:
		return "white"
	default:
		return "smpte"
	}
}

// TestVideoSource produces a live synthetic video feed with the given
// layout.
func TestVideoSource[F VideoFormat](v Video[F], pattern TestPattern) SourceStage[Video[F]] {
	return Source(v, fmt.Sprintf("videotestsrc pattern=%s is-live=true", pattern))
}

// TestAudioSource produces a live sine tone with the given layout.
func TestAudioSource[F AudioFormat](a Audio[F], freqHz int) SourceStage[Audio[F]] {
	return Source(a, fmt.Sprintf("audiotestsrc wave=sine freq=%d is-live=true", freqHz))
}

// URISource reads and demuxes any URI the engine has a handler for.
// The produced shape is untyped; follow with Reformat and a decode
// stage to recover typed composition.
func URISource(uri string) SourceStage[RawMedia] {
	return Source(RawMedia{}, formatSegment("uridecodebin", []Prop{{Name: "uri", Value: uri}}))
}

// DecodeVideo is a format boundary decoding any encoded input to raw
// video of the given layout.
func DecodeVideo[F VideoFormat](v Video[F]) FormatStage[Video[F]] {
	return Format(v, "decodebin ! videoconvert")
}

// DecodeAudio is a format boundary decoding any encoded input to raw
// audio of the given layout.
func DecodeAudio[F AudioFormat](a Audio[F]) FormatStage[Audio[F]] {
	return Format(a, "decodebin ! audioconvert ! audioresample")
}

// ConvertTo converts raw video to pixel format Out, keeping the
// accumulated geometry and framerate. The output format is given
// explicitly, the input is inferred:
//
//	p := ConvertTo[RGB](src)
func ConvertTo[Out, In VideoFormat](p Pipe[Video[In]]) Pipe[Video[Out]] {
	in := p.Shape()
	out := Video[Out]{Width: in.Width, Height: in.Height, FPS: in.FPS}
	return Append(p, Convert[Video[In]](out, "videoconvert"))
}

// Scale resizes raw video, keeping format and framerate.
func Scale[F VideoFormat](p Pipe[Video[F]], width, height int) Pipe[Video[F]] {
	in := p.Shape()
	out := Video[F]{Width: width, Height: height, FPS: in.FPS}
	return Append(p, Convert[Video[F]](out, "videoscale"))
}

// Rate adjusts the framerate of raw video by dropping or duplicating
// frames.
func Rate[F VideoFormat](p Pipe[Video[F]], fps Fraction) Pipe[Video[F]] {
	in := p.Shape()
	out := Video[F]{Width: in.Width, Height: in.Height, FPS: fps}
	return Append(p, Convert[Video[F]](out, "videorate"))
}

// ConvertAudioTo converts raw audio to sample format Out, keeping rate
// and channel count.
func ConvertAudioTo[Out, In AudioFormat](p Pipe[Audio[In]]) Pipe[Audio[Out]] {
	in := p.Shape()
	out := Audio[Out]{Rate: in.Rate, Channels: in.Channels}
	return Append(p, Convert[Audio[In]](out, "audioconvert"))
}

// Resample changes the sample rate of raw audio.
func Resample[F AudioFormat](p Pipe[Audio[F]], rate int) Pipe[Audio[F]] {
	in := p.Shape()
	out := Audio[F]{Rate: rate, Channels: in.Channels}
	return Append(p, Convert[Audio[F]](out, "audioresample"))
}

// Queue decouples the stages around it with an engine-side thread
// boundary. The shape is unchanged.
func Queue[S Shape](p Pipe[S]) Pipe[S] {
	return passthrough(p, "queue")
}

// H264EncoderConfig configures the engine's H.264 encoder element.
type H264EncoderConfig struct {
	BitrateKbps      int    // Target bitrate in kilobits per second
	KeyframeInterval int    // Maximum frames between keyframes
	Profile          string // "baseline", "main" or "high"
	Tune             string // Encoder tuning, e.g. "zerolatency"
	SpeedPreset      string // Speed/quality trade-off, e.g. "ultrafast"
}

// DefaultH264EncoderConfig returns a low-latency streaming
// configuration.
func DefaultH264EncoderConfig() H264EncoderConfig {
	return H264EncoderConfig{
		BitrateKbps:      2000,
		KeyframeInterval: 60,
		Profile:          "baseline",
		Tune:             "zerolatency",
		SpeedPreset:      "ultrafast",
	}
}

// EncodeH264 encodes raw video to H.264, carrying the accumulated
// geometry and framerate into the encoded shape.
func EncodeH264[F VideoFormat](p Pipe[Video[F]], cfg H264EncoderConfig) Pipe[H264] {
	in := p.Shape()
	out := H264{Width: in.Width, Height: in.Height, FPS: in.FPS, Profile: cfg.Profile}
	seg := fmt.Sprintf("videoconvert ! x264enc tune=%s speed-preset=%s bitrate=%d key-int-max=%d",
		cfg.Tune, cfg.SpeedPreset, cfg.BitrateKbps, cfg.KeyframeInterval)
	return Append(p, Convert[Video[F]](out, seg))
}

// DecodeH264 decodes H.264 to planar YUV, keeping geometry and
// framerate.
func DecodeH264(p Pipe[H264]) Pipe[Video[I420]] {
	in := p.Shape()
	out := Video[I420]{Width: in.Width, Height: in.Height, FPS: in.FPS}
	return Append(p, Convert[H264](out, "h264parse ! avdec_h264"))
}

// EncodeJPEG encodes raw video to JPEG images. Quality is 0-100.
func EncodeJPEG[F VideoFormat](p Pipe[Video[F]], quality int) Pipe[JPEG] {
	in := p.Shape()
	out := JPEG{Width: in.Width, Height: in.Height, FPS: in.FPS}
	return Append(p, Convert[Video[F]](out, fmt.Sprintf("videoconvert ! jpegenc quality=%d", quality)))
}

// PayloadH264 packetizes H.264 into RTP with the given payload type.
func PayloadH264(p Pipe[H264], payloadType int) Pipe[RTPStream] {
	out := RTPStream{Media: "video", EncodingName: "H264", ClockRate: 90000, PayloadType: payloadType}
	seg := fmt.Sprintf("rtph264pay pt=%d config-interval=-1", payloadType)
	return Append(p, Convert[H264](out, seg))
}

// ToAppSink terminates the pipe at an app sink so the launched
// pipeline can be consumed with Pipeline.Stream.
func ToAppSink[S Shape](p Pipe[S]) *Descriptor {
	name := nextSinkName()
	return Finish(p, SinkStage[S]{segment: "appsink name=" + name + " sync=false", sinkName: name})
}

// ToSink terminates the pipe at an arbitrary sink element.
func ToSink[S Shape](p Pipe[S], factory string, props ...Prop) *Descriptor {
	return Finish(p, Sink[S](formatSegment(factory, props)))
}

// ToAutoVideoSink terminates raw video at the platform's display sink.
func ToAutoVideoSink[F VideoFormat](p Pipe[Video[F]]) *Descriptor {
	return ToSink(p, "autovideosink")
}

// ToAutoAudioSink terminates raw audio at the platform's playback
// sink.
func ToAutoAudioSink[F AudioFormat](p Pipe[Audio[F]]) *Descriptor {
	return ToSink(p, "autoaudiosink")
}

// ToFileSink terminates the pipe writing raw payload bytes to a file.
func ToFileSink[S Shape](p Pipe[S], path string) *Descriptor {
	return ToSink(p, "filesink", Prop{Name: "location", Value: path})
}

// ToDiscardSink terminates the pipe discarding everything, useful for
// measuring upstream stages.
func ToDiscardSink[S Shape](p Pipe[S]) *Descriptor {
	return ToSink(p, "fakesink", Prop{Name: "sync", Value: false})
}
