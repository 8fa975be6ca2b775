package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 converts an MP3 stream to clip PCM: mono, 16-bit, SampleRate.
func DecodeMP3(data []byte) ([]byte, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	stereo, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	if len(stereo) < 4 {
		return nil, errors.New("failed to decode mp3: no audio frames")
	}
	return encodePCM(resample(downmix(stereo), dec.SampleRate(), SampleRate)), nil
}

// downmix averages interleaved 16-bit stereo frames into mono samples.
func downmix(stereo []byte) []int16 {
	out := make([]int16, len(stereo)/4)
	for i := range out {
		l := int16(binary.LittleEndian.Uint16(stereo[i*4:]))
		r := int16(binary.LittleEndian.Uint16(stereo[i*4+2:]))
		out[i] = int16((int32(l) + int32(r)) / 2)
	}
	return out
}

// resample converts samples from one rate to another by linear interpolation.
func resample(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int16, n)
	last := len(samples) - 1
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac)
	}
	return out
}

func encodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
