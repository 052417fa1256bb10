package wav

import (
	"bytes"
	"encoding/binary"
)

// Encode wraps raw 16-bit little-endian PCM in a WAV container in memory.
// Used where an API wants a self-describing audio body rather than a file.
func Encode(data []byte, sampleRate, numChannels int) []byte {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(data))

	byteRate := sampleRate * numChannels * 2
	blockAlign := numChannels * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes()
}
