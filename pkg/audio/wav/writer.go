package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

const headerSize = 44

// Writer writes a 16-bit PCM WAV file. Close patches the header sizes.
type Writer struct {
	file           *os.File
	sampleRate     uint32
	numChannels    uint16
	samplesWritten uint32
}

// NewWriter creates a WAV file for 16-bit samples.
func NewWriter(filename string, sampleRate uint32, numChannels uint16) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}
	w := &Writer{file: file, sampleRate: sampleRate, numChannels: numChannels}
	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

// WriteSamples appends interleaved samples.
func (w *Writer) WriteSamples(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	w.samplesWritten += uint32(len(samples)) / uint32(w.numChannels)
	return nil
}

// WriteFrames appends the PCM payload of each frame.
func (w *Writer) WriteFrames(frames []rtc.AudioFrame) error {
	for _, f := range frames {
		if _, err := w.file.Write(f.Data); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		w.samplesWritten += uint32(f.SamplesPerChannel)
	}
	return nil
}

// WriteTone appends a sine tone, useful for generating test clips.
func (w *Writer) WriteTone(frequency float64, durationMs int, amplitude float64) error {
	total := int(w.sampleRate) * durationMs / 1000
	samples := make([]int16, total*int(w.numChannels))
	for i := 0; i < total; i++ {
		t := float64(i) / float64(w.sampleRate)
		v := int16(amplitude * 32767 * math.Sin(2*math.Pi*frequency*t))
		for ch := 0; ch < int(w.numChannels); ch++ {
			samples[i*int(w.numChannels)+ch] = v
		}
	}
	return w.WriteSamples(samples)
}

// Close patches the RIFF and data sizes and closes the file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	dataSize := w.samplesWritten * uint32(w.numChannels) * 2

	if _, err := w.file.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("seek riff size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize+36); err != nil {
		return fmt.Errorf("patch riff size: %w", err)
	}
	if _, err := w.file.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("seek data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("patch data size: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) writeHeader() error {
	var buf [headerSize]byte
	copy(buf[0:4], "RIFF")
	// RIFF size patched on Close.
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], w.numChannels)
	binary.LittleEndian.PutUint32(buf[24:28], w.sampleRate)
	byteRate := w.sampleRate * uint32(w.numChannels) * 2
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], w.numChannels*2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	// data size patched on Close.
	_, err := w.file.Write(buf[:])
	return err
}
