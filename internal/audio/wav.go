package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmBitDepth = 16

// EncodeWAV writes 16-bit PCM samples as a WAV stream.
func EncodeWAV(w io.WriteSeeker, samples []int16, sampleRate, channels int) error {
	if len(samples) == 0 {
		return fmt.Errorf("encode wav: no samples")
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("encode wav: invalid format %d Hz x %d", sampleRate, channels)
	}

	enc := wav.NewEncoder(w, sampleRate, pcmBitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: pcmBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// WriteTempWAV encodes one speaker's audio into a new temporary WAV file and
// returns its path. The caller owns the file and must remove it.
func WriteTempWAV(dir string, samples []int16, sampleRate, channels int) (string, error) {
	f, err := os.CreateTemp(dir, "chunk-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()

	if err := EncodeWAV(f, samples, sampleRate, channels); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp wav: %w", err)
	}
	return path, nil
}
