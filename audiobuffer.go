package patchbay

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/viterin/vek/vek32"
)

// AudioBuffer is a block of non-interleaved sample data, as used by
// convolvers (impulse responses) and buffer sources (samples).
type AudioBuffer struct {
	SampleRate float64
	Channels   [][]float32
}

// NewAudioBuffer allocates a zeroed buffer with the given channel count and
// length in frames.
func NewAudioBuffer(channels, length int, sampleRate float64) *AudioBuffer {
	b := &AudioBuffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, length)
	}
	return b
}

func (b *AudioBuffer) NumChannels() int {
	return len(b.Channels)
}

// Length returns the length of the buffer in frames.
func (b *AudioBuffer) Length() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the length of the buffer in seconds.
func (b *AudioBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Length()) / b.SampleRate
}

// Peak returns the largest absolute sample value over all channels.
func (b *AudioBuffer) Peak() float32 {
	var peak float32
	tmp := make([]float32, b.Length())
	for _, ch := range b.Channels {
		if len(ch) == 0 {
			continue
		}
		copy(tmp, ch)
		vek32.Abs_Inplace(tmp[:len(ch)])
		if p := vek32.Max(tmp[:len(ch)]); p > peak {
			peak = p
		}
	}
	return peak
}

// RMS returns the root mean square of all channels.
func (b *AudioBuffer) RMS() float32 {
	if b.Length() == 0 {
		return 0
	}
	var total float32
	tmp := make([]float32, b.Length())
	for _, ch := range b.Channels {
		sq := vek32.Mul_Into(tmp[:len(ch)], ch, ch)
		total += vek32.Mean(sq)
	}
	return float32(math.Sqrt(float64(total / float32(len(b.Channels)))))
}

// Interleaved returns the samples as a single slice with the channels
// interleaved, e.g. L R L R for stereo.
func (b *AudioBuffer) Interleaved() []float32 {
	n := b.NumChannels()
	ret := make([]float32, n*b.Length())
	for c, ch := range b.Channels {
		for i, v := range ch {
			ret[i*n+c] = v
		}
	}
	return ret
}

// Wav encodes the buffer as a .wav file. If pcm16 is true, the samples are
// converted to signed 16-bit integers; otherwise they are written as 32-bit
// floats.
func (b *AudioBuffer) Wav(pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	data := b.Interleaved()
	wavHeader(len(data), b.NumChannels(), int(b.SampleRate), pcm16, buf)
	if err := rawToBuffer(data, pcm16, buf); err != nil {
		return nil, fmt.Errorf("could not encode wav: %w", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data []float32, pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(data))
		for i, v := range data {
			int16data[i] = int16(clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		err = binary.Write(buf, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(buf, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not write samples: %w", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 .wav file into
// the bytes.Buffer. bufferLength is the total number of samples over all
// channels.
func wavHeader(bufferLength, numChannels, sampleRate int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = wavePCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = waveFloat
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))                        // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength/numChannels)) // sample frames
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

const (
	wavePCM   = 1
	waveFloat = 3
)

// ReadWav decodes a .wav file with either 16-bit integer or 32-bit float
// samples. Chunks other than "fmt " and "data" are skipped.
func ReadWav(r io.Reader) (*AudioBuffer, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("could not read wav header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}
	var format, numChannels, bits uint16
	var sampleRate uint32
	gotFmt := false
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, fmt.Errorf("wav file has no data chunk: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("could not read chunk size: %w", err)
		}
		switch string(id[:]) {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short (%d bytes)", size)
			}
			var chunk [16]byte
			if _, err := io.ReadFull(r, chunk[:]); err != nil {
				return nil, fmt.Errorf("could not read fmt chunk: %w", err)
			}
			if _, err := io.CopyN(io.Discard, r, int64(size)-16+int64(size%2)); err != nil {
				return nil, fmt.Errorf("could not read fmt chunk: %w", err)
			}
			format = binary.LittleEndian.Uint16(chunk[0:2])
			numChannels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			bits = binary.LittleEndian.Uint16(chunk[14:16])
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			if numChannels == 0 {
				return nil, errors.New("wav file has zero channels")
			}
			return readWavData(r, size, format, bits, int(numChannels), float64(sampleRate))
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)+int64(size%2)); err != nil {
				return nil, fmt.Errorf("could not skip chunk %q: %w", id, err)
			}
		}
	}
}

// readWavData reads at most size bytes of samples. The declared size is not
// trusted for allocation.
func readWavData(r io.Reader, size uint32, format, bits uint16, numChannels int, sampleRate float64) (*AudioBuffer, error) {
	var width int
	var decode func([]byte) float32
	switch {
	case format == wavePCM && bits == 16:
		width = 2
		decode = func(b []byte) float32 { return float32(int16(binary.LittleEndian.Uint16(b))) / math.MaxInt16 }
	case format == waveFloat && bits == 32:
		width = 4
		decode = func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
	default:
		return nil, fmt.Errorf("unsupported wav format %d with %d bits per sample", format, bits)
	}
	raw, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("could not read wav data: %w", err)
	}
	if len(raw) < int(size) {
		return nil, fmt.Errorf("could not read wav data: %w", io.ErrUnexpectedEOF)
	}
	frames := len(raw) / (width * numChannels)
	b := NewAudioBuffer(numChannels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			b.Channels[c][i] = decode(raw[(i*numChannels+c)*width:])
		}
	}
	return b, nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
