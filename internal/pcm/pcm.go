// Package pcm converts between float32 audio samples and the base64 PCM16LE
// framing used on the live transport.
package pcm

import (
	"encoding/base64"
	"fmt"

	"github.com/charvoice/platform/internal/errors"
)

// Chunk is one base64-encoded unit of PCM audio as transmitted or received
// over the transport channel.
type Chunk struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// MIMEType returns the transport tag for raw PCM at the given rate.
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// Encode converts float samples in [-1, 1] to a base64 PCM16LE chunk.
// Samples are hard-clipped, then scaled asymmetrically: negative values by
// 32768, non-negative by 32767, so both ends of the int16 range are reachable
// without overflow. The scaling must stay bit-compatible with the peer's
// encoder, so it is deliberately not symmetric.
func Encode(samples []float32, sampleRate int) Chunk {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(uint16(v) >> 8)
	}
	return Chunk{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: MIMEType(sampleRate),
	}
}

// Decode converts a base64 PCM16LE payload back to float samples, split per
// channel in interleave order (channel-major inner loop). Every sample is
// divided by 32768.0, the inverse of the encoder above.
func Decode(data string, channels int) ([][]float32, error) {
	if channels < 1 {
		return nil, errors.Newf(errors.CodeDecodeError, "invalid channel count %d", channels)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDecodeError, "malformed base64 audio payload")
	}
	if len(raw)%2 != 0 {
		return nil, errors.Newf(errors.CodeDecodeError, "odd PCM16 byte length %d", len(raw))
	}
	total := len(raw) / 2
	if total%channels != 0 {
		return nil, errors.Newf(errors.CodeDecodeError, "sample count %d not divisible by %d channels", total, channels)
	}

	frames := total / channels
	out := make([][]float32, channels)
	for ch := 0; ch < channels; ch++ {
		buf := make([]float32, frames)
		for i := 0; i < frames; i++ {
			idx := (i*channels + ch) * 2
			v := int16(uint16(raw[idx]) | uint16(raw[idx+1])<<8)
			buf[i] = float32(v) / 32768.0
		}
		out[ch] = buf
	}
	return out, nil
}

// DecodeMono decodes a single-channel payload, the only layout the live
// transport currently carries.
func DecodeMono(data string) ([]float32, error) {
	chans, err := Decode(data, 1)
	if err != nil {
		return nil, err
	}
	return chans[0], nil
}
