package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// SamplesToWAV encodes float32 PCM samples as a mono 16-bit WAV byte slice.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		val := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(val))
	}

	return buf
}

// Info describes the format of a WAV payload.
type Info struct {
	SampleRate int
	Channels   int
	Bits       int
	Duration   time.Duration
}

// ParseWAV reads the RIFF header of a WAV payload. It walks chunks, so extra
// metadata chunks before "data" are tolerated.
func ParseWAV(data []byte) (Info, error) {
	var info Info
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, fmt.Errorf("not a RIFF/WAVE payload")
	}

	off := 12
	var dataLen int
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return info, fmt.Errorf("short fmt chunk")
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.Bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			dataLen = size
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if info.SampleRate == 0 || info.Channels == 0 || info.Bits == 0 {
		return info, fmt.Errorf("missing fmt chunk")
	}
	bytesPerSec := info.SampleRate * info.Channels * info.Bits / 8
	if bytesPerSec > 0 && dataLen > 0 {
		info.Duration = time.Duration(float64(dataLen) / float64(bytesPerSec) * float64(time.Second))
	}
	return info, nil
}
