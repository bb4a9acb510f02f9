package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-audio/wav"
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for uncompressed PCM.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// WrapWAV frames raw PCM into a WAV container without re-encoding: a
// standard header followed by the payload verbatim.
func WrapWAV(pcm []byte, sampleRate, sampleWidth, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if sampleWidth <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid pcm framing: width=%d channels=%d", sampleWidth, channels)
	}

	bitsPerSample := uint16(sampleWidth * 8)
	dataSize := uint32(len(pcm))

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    uint16(channels) * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// EstimateDuration returns the playback length in seconds of raw PCM.
// Any non-positive parameter or empty buffer yields 0.
func EstimateDuration(pcm []byte, sampleRate, sampleWidth, channels int) float64 {
	if len(pcm) == 0 || sampleRate <= 0 || sampleWidth <= 0 || channels <= 0 {
		return 0
	}
	frames := float64(len(pcm)) / float64(sampleWidth*channels)
	return frames / float64(sampleRate)
}

// Info describes a decoded WAV container.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Duration      float64
}

// ReadInfo extracts container metadata from WAV file bytes. Malformed
// input is an error, never a silent zero value.
func ReadInfo(data []byte) (Info, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return Info{}, fmt.Errorf("invalid wav file: %w", err)
		}
		return Info{}, fmt.Errorf("invalid wav file")
	}
	d.ReadInfo()

	dur, err := d.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("read wav duration: %w", err)
	}

	return Info{
		SampleRate:    int(d.SampleRate),
		Channels:      int(d.NumChans),
		BitsPerSample: int(d.BitDepth),
		Duration:      dur.Seconds(),
	}, nil
}
