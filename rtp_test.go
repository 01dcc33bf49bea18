package gstkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const testRTPCaps = "application/x-rtp, media=(string)video, encoding-name=(string)H264, clock-rate=(int)90000, payload=(int)96"

// collectWriter records written packets. Payloads are copied because
// the forwarded packet only aliases the mapped view.
type collectWriter struct {
	packets   []RTPPacket
	failAfter int
}

func (w *collectWriter) WriteRTP(p *RTPPacket) error {
	if w.failAfter > 0 && len(w.packets) >= w.failAfter {
		return errors.New("track closed")
	}
	clone := *p
	clone.Payload = append([]byte(nil), p.Payload...)
	w.packets = append(w.packets, clone)
	return nil
}

func newRTPStreamedPipeline(t *testing.T, e *fakeEngine) (*Pipeline, *SampleStream) {
	t.Helper()
	src := TestVideoSource(Video[I420]{Width: 640, Height: 480, FPS: Fraction{30, 1}}, PatternSMPTE)
	d := ToAppSink(PayloadH264(EncodeH264(From(src), DefaultH264EncoderConfig()), 96))
	p, err := d.Launch(e)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	s, err := p.Stream(context.Background(), StreamConfig{Policy: DeliverAll})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, s
}

func marshalTestPacket(t *testing.T, seq uint16, ts uint32, marker bool, payload []byte) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0x11223344,
		},
		Payload: payload,
	}
	buf, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return buf
}

func TestForwardRTP(t *testing.T) {
	e := newFakeEngine()
	p, s := newRTPStreamedPipeline(t, e)

	var total uint64
	for i := 0; i < 3; i++ {
		buf := marshalTestPacket(t, uint16(100+i), uint32(3000*i), i == 2, []byte{byte(i), 0xEE})
		total += uint64(len(buf))
		e.pushSample(t, p.handle, testRTPCaps, buf, ClockTime(uint64(i)*33e6))
	}
	e.queueMessage(p.handle, &Message{Kind: MessageEOS})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w := &collectWriter{}
	stats, err := ForwardRTP(ctx, s, w)
	if err != nil {
		t.Fatalf("ForwardRTP failed: %v", err)
	}
	if stats.Packets != 3 || stats.Bytes != total {
		t.Errorf("stats = %+v, want 3 packets, %d bytes", stats, total)
	}

	if len(w.packets) != 3 {
		t.Fatalf("wrote %d packets, want 3", len(w.packets))
	}
	for i, pkt := range w.packets {
		if pkt.SequenceNumber != uint16(100+i) {
			t.Errorf("packet #%d seq = %d, want %d", i, pkt.SequenceNumber, 100+i)
		}
		if pkt.SSRC != 0x11223344 || pkt.PayloadType != 96 {
			t.Errorf("packet #%d header = %+v", i, pkt.Header)
		}
		if len(pkt.Payload) != 2 || pkt.Payload[0] != byte(i) {
			t.Errorf("packet #%d payload = %v", i, pkt.Payload)
		}
	}
	if !w.packets[2].Marker {
		t.Error("last packet should carry the marker bit")
	}
}

func TestForwardRTPStopsOnWriteError(t *testing.T) {
	e := newFakeEngine()
	p, s := newRTPStreamedPipeline(t, e)

	for i := 0; i < 3; i++ {
		e.pushSample(t, p.handle, testRTPCaps, marshalTestPacket(t, uint16(i), 0, false, []byte{1}), ClockTimeNone)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w := &collectWriter{failAfter: 2}
	stats, err := ForwardRTP(ctx, s, w)
	if err == nil {
		t.Fatal("ForwardRTP should surface the writer's failure")
	}
	if stats.Packets != 2 {
		t.Errorf("Packets = %d, want 2 written before the failure", stats.Packets)
	}
}

func TestForwardRTPRejectsMalformedPacket(t *testing.T) {
	e := newFakeEngine()
	p, s := newRTPStreamedPipeline(t, e)

	// Shorter than an RTP header.
	e.pushSample(t, p.handle, testRTPCaps, []byte{1, 2, 3}, ClockTimeNone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := ForwardRTP(ctx, s, &collectWriter{}); err == nil {
		t.Error("ForwardRTP should fail on a malformed packet")
	}
}

func TestForwardRTPSurfacesBusError(t *testing.T) {
	e := newFakeEngine()
	p, s := newRTPStreamedPipeline(t, e)

	e.queueMessage(p.handle, &Message{Kind: MessageError, Source: "rtph264pay0", Text: "boom"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := ForwardRTP(ctx, s, &collectWriter{})
	var berr *BusError
	if !errors.As(err, &berr) {
		t.Fatalf("ForwardRTP = %v, want *BusError", err)
	}
	if berr.Source != "rtph264pay0" {
		t.Errorf("BusError = %+v", berr)
	}
}

func TestNewWebRTCTrack(t *testing.T) {
	caps := NewCaps("application/x-rtp").
		With("media", "video").
		With("encoding-name", "H264").
		WithInt("clock-rate", 90000).
		WithInt("payload", 96)

	track, err := NewWebRTCTrack(caps, "video-0", "camera")
	if err != nil {
		t.Fatalf("NewWebRTCTrack failed: %v", err)
	}
	if track.ID() != "video-0" || track.StreamID() != "camera" {
		t.Errorf("track ids = %q, %q", track.ID(), track.StreamID())
	}
	if got := track.Codec().MimeType; got != webrtc.MimeTypeH264 {
		t.Errorf("MimeType = %q, want %q", got, webrtc.MimeTypeH264)
	}
}

func TestNewWebRTCTrackRejectsNonRTPCaps(t *testing.T) {
	if _, err := NewWebRTCTrack(NewCaps("video/x-raw"), "id", "stream"); err == nil {
		t.Error("raw caps should be rejected")
	}
}

func TestRTPCodecCapability(t *testing.T) {
	tests := []struct {
		name string
		caps Caps
		want webrtc.RTPCodecCapability
	}{
		{
			"h264 with explicit clock rate",
			NewCaps("application/x-rtp").With("encoding-name", "H264").WithInt("clock-rate", 90000),
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		},
		{
			"vp8 defaults to video clock rate",
			NewCaps("application/x-rtp").With("encoding-name", "VP8"),
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		},
		{
			"opus defaults",
			NewCaps("application/x-rtp").With("encoding-name", "OPUS"),
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		},
		{
			"opus with explicit layout",
			NewCaps("application/x-rtp").With("encoding-name", "OPUS").WithInt("clock-rate", 24000).WithInt("channels", 1),
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 24000, Channels: 1},
		},
		{
			"lowercase encoding name",
			NewCaps("application/x-rtp").With("encoding-name", "av1"),
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeAV1, ClockRate: 90000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rtpCodecCapability(tt.caps)
			if err != nil {
				t.Fatalf("rtpCodecCapability failed: %v", err)
			}
			if got.MimeType != tt.want.MimeType || got.ClockRate != tt.want.ClockRate || got.Channels != tt.want.Channels {
				t.Errorf("capability = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := rtpCodecCapability(NewCaps("application/x-rtp").With("encoding-name", "SPEEX")); err == nil {
		t.Error("unsupported encodings should be rejected")
	}
	if _, err := rtpCodecCapability(NewCaps("application/x-rtp")); err == nil {
		t.Error("missing encoding-name should be rejected")
	}
}
