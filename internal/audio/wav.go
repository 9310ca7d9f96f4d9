package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// ErrNotPCM is returned for WAV files whose payload is not linear PCM
var ErrNotPCM = errors.New("wav payload is not linear PCM")

// PCM is the payload of a WAV file together with its format
type PCM struct {
	Data     []byte
	Format   *goaudio.Format
	BitDepth int
}

// BytesPerSecond returns the data rate of the PCM payload
func (p *PCM) BytesPerSecond() int {
	if p.Format == nil {
		return 0
	}
	return p.Format.SampleRate * p.Format.NumChannels * p.BitDepth / 8
}

// ReadFile reads the whole file into memory, header included
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	return data, nil
}

// ReadWAV parses the RIFF header of r and returns the raw PCM frames
func ReadWAV(r io.ReadSeeker) (*PCM, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrNotPCM, d.WavAudioFormat)
	}
	if d.NumChans < 1 || d.BitDepth < 8 {
		return nil, fmt.Errorf("invalid wav format: %d channels, %d bits", d.NumChans, d.BitDepth)
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to find wav data chunk: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(d.PCMChunk, int64(d.PCMChunk.Size)))
	if err != nil {
		return nil, fmt.Errorf("failed to read wav data chunk: %w", err)
	}

	return &PCM{
		Data:     data,
		Format:   d.Format(),
		BitDepth: int(d.BitDepth),
	}, nil
}

// OpenWAV opens and parses a WAV file from disk
func OpenWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	return ReadWAV(f)
}
