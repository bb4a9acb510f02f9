package audio

import "encoding/binary"

// Normalize peak-normalizes 16-bit PCM so the loudest sample lands at
// targetPeak of full scale, returning a new buffer. Empty input,
// non-16-bit input, and all-zero (silent) input are returned unchanged.
//
// This is peak normalization, not loudness (RMS) normalization: two
// buffers normalized to the same peak can still differ in perceived
// volume.
func Normalize(pcm []byte, sampleWidth int, targetPeak float64) []byte {
	if len(pcm) == 0 || sampleWidth != 2 {
		return pcm
	}

	n := len(pcm) / 2
	peak := 0
	for i := 0; i < n; i++ {
		s := int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		return pcm
	}

	scale := targetPeak * 32767 / float64(peak)
	out := make([]byte, len(pcm))
	for i := 0; i < n; i++ {
		s := int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		scaled := clampPCM16(int(float64(s) * scale))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(scaled)))
	}
	return out
}
