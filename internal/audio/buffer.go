package audio

import (
	"fmt"
	"io"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	bitsPerSample = 16
	numChannels   = 1
	bytesPerFrame = numChannels * bitsPerSample / 8
)

// Buffer holds raw PCM16LE mono samples at a fixed sample rate. It is the
// unit passed between the synthesizer and the assembler and is never exposed
// outside the generation pipeline.
type Buffer struct {
	PCM        []byte
	SampleRate int
}

// maxSilence bounds a single silence allocation. Callers clamp pause
// directives well below this; the bound holds even if they do not.
const maxSilence = 10 * time.Minute

// Silence returns a buffer of zero samples lasting exactly d, bounded by
// maxSilence.
func Silence(d time.Duration, sampleRate int) Buffer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if d < 0 {
		d = 0
	}
	if d > maxSilence {
		d = maxSilence
	}
	frames := int(d.Seconds() * float64(sampleRate))
	return Buffer{
		PCM:        make([]byte, frames*bytesPerFrame),
		SampleRate: sampleRate,
	}
}

// FromPCM wraps already-decoded PCM16LE bytes. An odd trailing byte is
// dropped so the buffer always holds whole frames.
func FromPCM(pcm []byte, sampleRate int) Buffer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if len(pcm)%bytesPerFrame != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%bytesPerFrame]
	}
	return Buffer{PCM: pcm, SampleRate: sampleRate}
}

// Duration derives playback time from the byte length.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || len(b.PCM) == 0 {
		return 0
	}
	frames := len(b.PCM) / bytesPerFrame
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

func (b Buffer) Empty() bool {
	return len(b.PCM) == 0
}

// Concat appends the given buffers in order into one continuous buffer.
// The sample rate of the first non-empty buffer wins; the operation is
// associative and order-preserving.
func Concat(bufs ...Buffer) Buffer {
	total := 0
	sampleRate := 0
	for _, b := range bufs {
		total += len(b.PCM)
		if sampleRate == 0 && b.SampleRate > 0 {
			sampleRate = b.SampleRate
		}
	}
	if sampleRate == 0 {
		sampleRate = 16000
	}
	out := make([]byte, 0, total)
	for _, b := range bufs {
		out = append(out, b.PCM...)
	}
	return Buffer{PCM: out, SampleRate: sampleRate}
}

// EncodeWAV wraps the PCM payload in a RIFF WAV container.
func (b Buffer) EncodeWAV() ([]byte, error) {
	samples := make([]int, len(b.PCM)/bytesPerFrame)
	for i := range samples {
		samples[i] = int(int16(uint16(b.PCM[2*i]) | uint16(b.PCM[2*i+1])<<8))
	}

	intBuf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{SampleRate: b.SampleRate, NumChannels: numChannels},
		Data:           samples,
		SourceBitDepth: bitsPerSample,
	}

	wavFile := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(wavFile, b.SampleRate, bitsPerSample, numChannels, 1)
	if err := encoder.Write(intBuf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	out, err := io.ReadAll(wavFile.Reader())
	if err != nil {
		return nil, fmt.Errorf("read wav into memory: %w", err)
	}
	return out, nil
}
