// Core frame types delivered by running pipelines.
package gstkit

// PixelFormat identifies raw video pixel layouts. String() returns the
// engine's caps spelling.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatRGB                 // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA                // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA                // Packed BGRA, 4 bytes per pixel
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatGray8               // Single 8-bit luma plane
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGB:
		return "RGB"
	case PixelFormatRGBA:
		return "RGBA"
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatGray8:
		return "GRAY8"
	default:
		return "Unknown"
	}
}

// ParsePixelFormat maps a caps format field back to a PixelFormat.
func ParsePixelFormat(s string) PixelFormat {
	switch s {
	case "RGB":
		return PixelFormatRGB
	case "RGBA":
		return PixelFormatRGBA
	case "BGRA":
		return PixelFormatBGRA
	case "I420":
		return PixelFormatI420
	case "NV12":
		return PixelFormatNV12
	case "GRAY8":
		return PixelFormatGray8
	default:
		return PixelFormatUnknown
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	case PixelFormatRGB, PixelFormatRGBA, PixelFormatBGRA, PixelFormatGray8:
		return 1 // Packed
	default:
		return 0
	}
}

// FrameSize returns the byte size of one tightly packed frame, or 0 for
// an unknown format.
func (p PixelFormat) FrameSize(width, height int) int {
	switch p {
	case PixelFormatRGB:
		return width * height * 3
	case PixelFormatRGBA, PixelFormatBGRA:
		return width * height * 4
	case PixelFormatI420, PixelFormatNV12:
		return width*height + (width/2)*(height/2)*2
	case PixelFormatGray8:
		return width * height
	default:
		return 0
	}
}

// SampleFormat identifies raw audio sample layouts. String() returns
// the engine's caps spelling.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatS16                  // Signed 16-bit PCM, little endian
	SampleFormatF32                  // 32-bit float, little endian
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatS16:
		return "S16LE"
	case SampleFormatF32:
		return "F32LE"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatS16:
		return 2
	case SampleFormatF32:
		return 4
	default:
		return 0
	}
}

// Frame is one sample delivered by a running pipeline: payload plus the
// layout it was negotiated with. The embedded Buffer carries timing and
// the payload; Width/Height/Format are zero for non-raw-video caps.
//
// A frame handed out by SampleStream.Next is reclaimed on the following
// Next or Close call. Clone it to keep the data longer.
type Frame struct {
	*Buffer

	Width  int         // Frame width in pixels
	Height int         // Frame height in pixels
	Format PixelFormat // Pixel format
	Caps   Caps        // Negotiated caps the sample arrived with
	Seq    uint64      // Delivery sequence number, starts at 1
}

// Clone returns a frame sharing the payload copy-on-write. The clone's
// lifetime is independent of the stream that produced the original.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Buffer: f.Buffer.Clone(),
		Width:  f.Width,
		Height: f.Height,
		Format: f.Format,
		Caps:   f.Caps,
		Seq:    f.Seq,
	}
}
