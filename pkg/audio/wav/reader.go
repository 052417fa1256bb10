// Package wav reads and writes 16-bit PCM WAV files. The backchannel
// scheduler loads its acknowledgment clips through this package, and tests
// use the writer to generate fixtures.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// Header describes a parsed WAV file.
type Header struct {
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Duration returns the audio length described by the header.
func (h Header) Duration() time.Duration {
	bytesPerSecond := h.SampleRate * uint32(h.NumChannels) * uint32(h.BitsPerSample) / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(h.DataSize) * time.Second / time.Duration(bytesPerSecond)
}

// Reader decodes one WAV file into audio frames.
type Reader struct {
	file   *os.File
	header Header
}

// NewReader opens and validates a WAV file.
func NewReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	r := &Reader{file: file}
	if err := r.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	return r, nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.header }

// ReadFrames decodes the whole file into 10ms frames. The final frame is
// zero-padded to full length.
func (r *Reader) ReadFrames() ([]rtc.AudioFrame, error) {
	samplesPerFrame := int(r.header.SampleRate) / 100
	bytesPerFrame := samplesPerFrame * int(r.header.NumChannels) * 2

	var frames []rtc.AudioFrame
	remaining := int(r.header.DataSize)
	for i := 0; remaining > 0; i++ {
		n := bytesPerFrame
		if remaining < n {
			n = remaining
		}
		data := make([]byte, bytesPerFrame)
		if _, err := io.ReadFull(r.file, data[:n]); err != nil {
			return nil, fmt.Errorf("read audio data: %w", err)
		}
		remaining -= n

		frames = append(frames, rtc.AudioFrame{
			Data:              data,
			SampleRate:        int(r.header.SampleRate),
			SamplesPerChannel: samplesPerFrame,
			NumChannels:       int(r.header.NumChannels),
			Timestamp:         time.Duration(i) * 10 * time.Millisecond,
		})
	}
	return frames, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// LoadClip reads an entire WAV file as frames in one call.
func LoadClip(filename string) ([]rtc.AudioFrame, error) {
	r, err := NewReader(filename)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadFrames()
}

func (r *Reader) readHeader() error {
	var riff [12]byte
	if _, err := io.ReadFull(r.file, riff[:]); err != nil {
		return fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return fmt.Errorf("not a RIFF/WAVE file")
	}

	foundFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r.file, chunk[:]); err != nil {
			return fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return fmt.Errorf("fmt chunk too small: %d bytes", size)
			}
			var data [16]byte
			if _, err := io.ReadFull(r.file, data[:]); err != nil {
				return fmt.Errorf("read fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(data[0:2]); format != 1 {
				return fmt.Errorf("unsupported audio format %d, want PCM", format)
			}
			r.header.NumChannels = binary.LittleEndian.Uint16(data[2:4])
			r.header.SampleRate = binary.LittleEndian.Uint32(data[4:8])
			r.header.BitsPerSample = binary.LittleEndian.Uint16(data[14:16])
			if size > 16 {
				if _, err := r.file.Seek(int64(size-16), io.SeekCurrent); err != nil {
					return fmt.Errorf("skip fmt tail: %w", err)
				}
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return fmt.Errorf("data chunk before fmt chunk")
			}
			r.header.DataSize = size
			return r.validate()
		default:
			if _, err := r.file.Seek(int64(size), io.SeekCurrent); err != nil {
				return fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

func (r *Reader) validate() error {
	if r.header.BitsPerSample != 16 {
		return fmt.Errorf("unsupported sample depth %d-bit, want 16-bit", r.header.BitsPerSample)
	}
	if r.header.NumChannels != 1 && r.header.NumChannels != 2 {
		return fmt.Errorf("unsupported channel count %d", r.header.NumChannels)
	}
	if r.header.SampleRate == 0 {
		return fmt.Errorf("invalid sample rate 0")
	}
	return nil
}
