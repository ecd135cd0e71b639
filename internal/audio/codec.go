package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// DecodeError reports a malformed inbound audio payload.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio decode: %s", e.Reason)
}

// Segment is one decoded, independently schedulable unit of model speech.
// Samples are normalized floating-point values in [-1, 1).
type Segment struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback duration of the segment.
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// EncodeFrame converts float samples to 16-bit signed little-endian PCM.
// Each sample is clamped to [-1, 1]; negative values scale by 32768,
// non-negative values by 32767.
func EncodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodeSamples converts 16-bit signed little-endian PCM to normalized
// float samples (each divided by 32768).
func DecodeSamples(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("byte length %d is not a whole number of 16-bit samples", len(data))}
	}
	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return samples, nil
}

// DecodeSegment interprets data as 16-bit signed PCM at the given rate.
func DecodeSegment(data []byte, sampleRate int) (*Segment, error) {
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	samples, err := DecodeSamples(data)
	if err != nil {
		return nil, err
	}
	return &Segment{Samples: samples, SampleRate: sampleRate}, nil
}

// EncodeBase64 wraps binary audio for the text-safe transport.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 unwraps base64-encoded audio.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return data, nil
}

// SilenceFrame returns n zero samples of 16-bit PCM, used as a keepalive
// payload.
func SilenceFrame(n int) []byte {
	return make([]byte, n*2)
}
