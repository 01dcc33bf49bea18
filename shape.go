// Shapes are the compile-time descriptions of the data flowing between
// pipeline stages. The type parameter of a Pipe tracks the shape of
// the data leaving its last stage, so stage chains that disagree about
// their connecting shape do not compile.
package gstkit

// Shape describes the data between two stages: a compile-time type for
// composition checking plus the runtime layout its caps serialize
// from.
type Shape interface {
	// Caps returns the layout as engine caps. Unset layout fields are
	// omitted.
	Caps() Caps
}

// VideoFormat is a compile-time pixel format marker. RGB, RGBA, BGRA,
// I420, NV12 and Gray8 implement it.
type VideoFormat interface {
	pixelFormat() PixelFormat
}

type (
	// RGB marks packed 24-bit RGB video.
	RGB struct{}
	// RGBA marks packed 32-bit RGBA video.
	RGBA struct{}
	// BGRA marks packed 32-bit BGRA video.
	BGRA struct{}
	// I420 marks planar YUV 4:2:0 video.
	I420 struct{}
	// NV12 marks semi-planar YUV 4:2:0 video.
	NV12 struct{}
	// Gray8 marks single-plane 8-bit luma video.
	Gray8 struct{}
)

func (RGB) pixelFormat() PixelFormat   { return PixelFormatRGB }
func (RGBA) pixelFormat() PixelFormat  { return PixelFormatRGBA }
func (BGRA) pixelFormat() PixelFormat  { return PixelFormatBGRA }
func (I420) pixelFormat() PixelFormat  { return PixelFormatI420 }
func (NV12) pixelFormat() PixelFormat  { return PixelFormatNV12 }
func (Gray8) pixelFormat() PixelFormat { return PixelFormatGray8 }

// AudioFormat is a compile-time sample format marker. S16 and F32
// implement it.
type AudioFormat interface {
	sampleFormat() SampleFormat
}

type (
	// S16 marks signed 16-bit little-endian PCM audio.
	S16 struct{}
	// F32 marks 32-bit little-endian float audio.
	F32 struct{}
)

func (S16) sampleFormat() SampleFormat { return SampleFormatS16 }
func (F32) sampleFormat() SampleFormat { return SampleFormatF32 }

// Video is raw video of pixel format F. Zero layout fields are
// unconstrained and left to engine negotiation.
type Video[F VideoFormat] struct {
	Width  int      // Frame width in pixels, 0 = negotiated
	Height int      // Frame height in pixels, 0 = negotiated
	FPS    Fraction // Framerate, zero = negotiated
}

// PixelFormat returns the format marker's runtime value.
func (v Video[F]) PixelFormat() PixelFormat {
	var f F
	return f.pixelFormat()
}

func (v Video[F]) Caps() Caps {
	c := NewCaps("video/x-raw").With("format", v.PixelFormat().String())
	if v.Width > 0 {
		c = c.WithInt("width", v.Width)
	}
	if v.Height > 0 {
		c = c.WithInt("height", v.Height)
	}
	if !v.FPS.IsZero() {
		c = c.WithFraction("framerate", v.FPS)
	}
	return c
}

// Audio is raw audio of sample format F, interleaved. Zero layout
// fields are unconstrained.
type Audio[F AudioFormat] struct {
	Rate     int // Sample rate in Hz, 0 = negotiated
	Channels int // Channel count, 0 = negotiated
}

// SampleFormat returns the format marker's runtime value.
func (a Audio[F]) SampleFormat() SampleFormat {
	var f F
	return f.sampleFormat()
}

func (a Audio[F]) Caps() Caps {
	c := NewCaps("audio/x-raw").With("format", a.SampleFormat().String()).With("layout", "interleaved")
	if a.Rate > 0 {
		c = c.WithInt("rate", a.Rate)
	}
	if a.Channels > 0 {
		c = c.WithInt("channels", a.Channels)
	}
	return c
}

// H264 is H.264-encoded video in byte-stream form.
type H264 struct {
	Width   int      // Coded width in pixels, 0 = negotiated
	Height  int      // Coded height in pixels, 0 = negotiated
	FPS     Fraction // Framerate, zero = negotiated
	Profile string   // "baseline", "main", "high"; "" = negotiated
}

func (h H264) Caps() Caps {
	c := NewCaps("video/x-h264").With("stream-format", "byte-stream").With("alignment", "au")
	if h.Profile != "" {
		c = c.With("profile", h.Profile)
	}
	if h.Width > 0 {
		c = c.WithInt("width", h.Width)
	}
	if h.Height > 0 {
		c = c.WithInt("height", h.Height)
	}
	if !h.FPS.IsZero() {
		c = c.WithFraction("framerate", h.FPS)
	}
	return c
}

// JPEG is JPEG-encoded video.
type JPEG struct {
	Width  int      // Frame width in pixels, 0 = negotiated
	Height int      // Frame height in pixels, 0 = negotiated
	FPS    Fraction // Framerate, zero = negotiated
}

func (j JPEG) Caps() Caps {
	c := NewCaps("image/jpeg")
	if j.Width > 0 {
		c = c.WithInt("width", j.Width)
	}
	if j.Height > 0 {
		c = c.WithInt("height", j.Height)
	}
	if !j.FPS.IsZero() {
		c = c.WithFraction("framerate", j.FPS)
	}
	return c
}

// RTPStream is RTP-packetized media, the shape leaving a payloader.
type RTPStream struct {
	Media        string // "video" or "audio"
	EncodingName string // RTP encoding name, e.g. "H264"
	ClockRate    int    // RTP clock rate in Hz
	PayloadType  int    // RTP payload type
}

func (r RTPStream) Caps() Caps {
	c := NewCaps("application/x-rtp")
	if r.Media != "" {
		c = c.With("media", r.Media)
	}
	if r.EncodingName != "" {
		c = c.With("encoding-name", r.EncodingName)
	}
	if r.ClockRate > 0 {
		c = c.WithInt("clock-rate", r.ClockRate)
	}
	if r.PayloadType > 0 {
		c = c.WithInt("payload", r.PayloadType)
	}
	return c
}

// RawMedia is the untyped shape: composition after it is unchecked and
// the engine negotiates freely.
type RawMedia struct{}

func (RawMedia) Caps() Caps { return Caps{} }
