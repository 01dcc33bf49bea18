// RTP egress: adapting an RTP-payloaded sample stream to pion packet
// writers and WebRTC tracks. Packetization itself happens engine-side
// in the payloader stage; this file only moves packets across.
package gstkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Re-export pion/rtp types for convenience
type (
	// RTPPacket is an alias to pion's rtp.Packet
	RTPPacket = rtp.Packet

	// RTPHeader is an alias to pion's rtp.Header
	RTPHeader = rtp.Header
)

// RTPWriter consumes RTP packets. pion's webrtc.TrackLocalStaticRTP
// implements it.
type RTPWriter interface {
	WriteRTP(packet *RTPPacket) error
}

// ForwardStats provides forwarding counters.
type ForwardStats struct {
	Packets uint64 // Packets written
	Bytes   uint64 // Total packet bytes written, headers included
}

// ForwardRTP pulls RTP-payloaded samples from the stream and writes
// each as a packet, until the stream ends or ctx is cancelled. The
// pipeline behind the stream must terminate in an RTP payloader (see
// PayloadH264) followed by ToAppSink.
//
// Returns the counters and nil after a clean end of stream; a stream
// failure or write error is returned as-is.
func ForwardRTP(ctx context.Context, s *SampleStream, w RTPWriter) (ForwardStats, error) {
	var stats ForwardStats
	for {
		f, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		err = f.Map(func(data []byte) error {
			var pkt rtp.Packet
			if err := pkt.Unmarshal(data); err != nil {
				return fmt.Errorf("failed to unmarshal RTP packet: %w", err)
			}
			// The packet references the mapped view; write it before
			// the view ends.
			if err := w.WriteRTP(&pkt); err != nil {
				return fmt.Errorf("failed to write RTP packet: %w", err)
			}
			stats.Packets++
			stats.Bytes += uint64(len(data))
			return nil
		})
		if err != nil {
			return stats, err
		}
	}
}

// NewWebRTCTrack creates a local WebRTC track matching RTP caps, as
// produced by a payloader stage or parsed from the engine. Feed it
// with ForwardRTP.
func NewWebRTCTrack(c Caps, trackID, streamID string) (*webrtc.TrackLocalStaticRTP, error) {
	codec, err := rtpCodecCapability(c)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticRTP(codec, trackID, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create track: %w", err)
	}
	return track, nil
}

// rtpCodecCapability maps RTP caps to a pion codec capability.
func rtpCodecCapability(c Caps) (webrtc.RTPCodecCapability, error) {
	if c.Name() != "application/x-rtp" {
		return webrtc.RTPCodecCapability{}, fmt.Errorf("caps %q are not RTP", c.Name())
	}
	encoding, _ := c.Get("encoding-name")
	var mime string
	switch strings.ToUpper(encoding) {
	case "H264":
		mime = webrtc.MimeTypeH264
	case "VP8":
		mime = webrtc.MimeTypeVP8
	case "VP9":
		mime = webrtc.MimeTypeVP9
	case "AV1":
		mime = webrtc.MimeTypeAV1
	case "OPUS":
		mime = webrtc.MimeTypeOpus
	default:
		return webrtc.RTPCodecCapability{}, fmt.Errorf("unsupported RTP encoding %q", encoding)
	}
	clockRate, ok := c.Int("clock-rate")
	if !ok {
		clockRate = 90000
		if mime == webrtc.MimeTypeOpus {
			clockRate = 48000
		}
	}
	codec := webrtc.RTPCodecCapability{MimeType: mime, ClockRate: uint32(clockRate)}
	if mime == webrtc.MimeTypeOpus {
		channels, ok := c.Int("channels")
		if !ok {
			channels = 2
		}
		codec.Channels = uint16(channels)
	}
	return codec, nil
}
