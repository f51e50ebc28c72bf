package audio

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/zaf/g711"
)

// ULawSampleRate is the sample rate of G.711 µ-law audio.
const ULawSampleRate = 8000

// ULawToPCM converts 8-bit µ-law bytes to 16-bit little-endian PCM using
// the ITU-T G.711 standard.
func ULawToPCM(uLaw []byte) []byte {
	return g711.DecodeUlaw(uLaw)
}

// PCMToWAV wraps raw 16-bit little-endian mono PCM in a RIFF/WAVE container
// so browsers can play it directly.
func PCMToWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("PCM data is empty")
	}
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM data must have even length (16-bit samples)")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	const (
		numChannels    = 1
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
	)

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// ULawToWAV decodes µ-law telephony audio and wraps it as an 8 kHz mono
// WAV clip.
func ULawToWAV(uLaw []byte) ([]byte, error) {
	if len(uLaw) == 0 {
		return nil, errors.New("u-law data is empty")
	}
	return PCMToWAV(ULawToPCM(uLaw), ULawSampleRate)
}
