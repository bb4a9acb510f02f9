// Package audio implements the PCM assembly pipeline: stitching
// independently synthesized chunks, peak normalization, WAV framing,
// and reference-clip validation.
//
// All functions operate on 16-bit signed little-endian PCM unless noted.
package audio

import "encoding/binary"

// StitchOptions controls how chunk seams are joined.
type StitchOptions struct {
	SampleRate  int
	SampleWidth int
	Channels    int
	CrossfadeMS int
	SilenceMS   int
}

// DefaultStitchOptions uses a 40 ms crossfade, which masks prosody
// resets between chunks without an audible seam.
func DefaultStitchOptions(sampleRate int) StitchOptions {
	return StitchOptions{
		SampleRate:  sampleRate,
		SampleWidth: 2,
		Channels:    1,
		CrossfadeMS: 40,
		SilenceMS:   0,
	}
}

// Stitch concatenates PCM chunks left to right with an optional linear
// crossfade at each junction and optional inter-chunk silence. Zero
// chunks yields an empty buffer; a single chunk is returned as-is
// (callers must not rely on aliasing).
func Stitch(chunks [][]byte, opts StitchOptions) []byte {
	if len(chunks) == 0 {
		return []byte{}
	}
	if len(chunks) == 1 {
		return chunks[0]
	}

	combined := chunks[0]
	silence := Silence(opts.SilenceMS, opts.SampleRate, opts.SampleWidth, opts.Channels)

	for _, chunk := range chunks[1:] {
		if opts.CrossfadeMS > 0 && opts.SampleWidth == 2 {
			fadeSamples := int(float64(opts.SampleRate)*float64(opts.CrossfadeMS)/1000.0) * opts.Channels
			combined = crossfadePCM16(combined, chunk, fadeSamples)
			if len(silence) > 0 {
				combined = append(combined, silence...)
			}
		} else {
			combined = append(combined, silence...)
			combined = append(combined, chunk...)
		}
	}

	return combined
}

// crossfadePCM16 blends the tail of left into the head of right over
// fadeSamples with complementary linear gains. When either buffer is
// shorter than the fade window the fade shrinks to fit; at zero this
// degenerates to plain concatenation rather than underflowing.
func crossfadePCM16(left, right []byte, fadeSamples int) []byte {
	if fadeSamples <= 0 {
		return append(append([]byte{}, left...), right...)
	}

	leftN := len(left) / 2
	rightN := len(right) / 2
	if fadeSamples > leftN {
		fadeSamples = leftN
	}
	if fadeSamples > rightN {
		fadeSamples = rightN
	}
	if fadeSamples == 0 {
		return append(append([]byte{}, left...), right...)
	}

	out := make([]byte, 0, len(left)+len(right)-fadeSamples*2)
	out = append(out, left[:(leftN-fadeSamples)*2]...)

	for i := 0; i < fadeSamples; i++ {
		l := int16(binary.LittleEndian.Uint16(left[(leftN-fadeSamples+i)*2:]))
		r := int16(binary.LittleEndian.Uint16(right[i*2:]))
		leftGain := float64(fadeSamples-i) / float64(fadeSamples)
		rightGain := float64(i) / float64(fadeSamples)
		mixed := int(float64(l)*leftGain + float64(r)*rightGain)
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(clampPCM16(mixed))))
	}

	out = append(out, right[fadeSamples*2:]...)
	return out
}

// Silence returns duration_ms of zeroed PCM frames.
func Silence(durationMS, sampleRate, sampleWidth, channels int) []byte {
	if durationMS <= 0 {
		return nil
	}
	frames := int(float64(sampleRate) * float64(durationMS) / 1000.0)
	return make([]byte, frames*channels*sampleWidth)
}

func clampPCM16(v int) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
