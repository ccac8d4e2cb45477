// Package audio builds the local placeholder artifacts used when the speech
// provider cannot produce narration.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Default placeholder format: mono 16-bit PCM at 22.05 kHz.
const (
	DefaultSampleRate = 22050
	DefaultBitDepth   = 16
	DefaultChannels   = 1
)

// Validation limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8
	maxDuration   = 5 * time.Minute
)

const (
	wavHeaderSize = 44
	pcmFormatTag  = 1
	fmtChunkSize  = 16
	bitsPerByte   = 8
)

const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d"
	errFmtDurationRange   = "%w: duration must be between 0 and %s"
)

// ErrInvalidFormat indicates unusable PCM format settings.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes uncompressed PCM audio.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// DefaultFormat returns the placeholder format.
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		BitDepth:   DefaultBitDepth,
		Channels:   DefaultChannels,
	}
}

// Validate checks the format is within reasonable bounds.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, maxSampleRate)
	}

	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat)
	}

	if f.Channels <= 0 || f.Channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, maxChannels)
	}

	return nil
}

func (f Format) blockAlign() int {
	return f.Channels * f.BitDepth / bitsPerByte
}

// Silence returns a playable RIFF/WAVE file containing duration of silence.
func Silence(duration time.Duration, format Format) ([]byte, error) {
	err := format.Validate()
	if err != nil {
		return nil, err
	}

	if duration < 0 || duration > maxDuration {
		return nil, fmt.Errorf(errFmtDurationRange, ErrInvalidFormat, maxDuration)
	}

	frames := int(duration.Seconds() * float64(format.SampleRate))
	dataSize := frames * format.blockAlign()

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))
	writeHeader(buf, format, dataSize)

	// 8-bit PCM is unsigned; silence is the midpoint.
	silent := byte(0)
	if format.BitDepth == 8 {
		silent = 0x80
	}

	buf.Write(bytes.Repeat([]byte{silent}, dataSize))

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, format Format, dataSize int) {
	byteRate := format.SampleRate * format.blockAlign()

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(wavHeaderSize-8+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	_ = binary.Write(buf, binary.LittleEndian, uint16(pcmFormatTag))
	_ = binary.Write(buf, binary.LittleEndian, uint16(format.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(format.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(format.blockAlign()))
	_ = binary.Write(buf, binary.LittleEndian, uint16(format.BitDepth))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
}
