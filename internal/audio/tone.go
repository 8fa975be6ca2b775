package audio

import (
	"encoding/binary"
	"math"
	"time"
)

type note struct {
	freq float64
	dur  time.Duration
}

// tone renders notes as s16le PCM with a short linear fade at both ends.
func tone(notes ...note) []byte {
	var pcm []byte
	for _, n := range notes {
		samples := int(n.dur.Seconds() * SampleRate)
		fade := samples / 10
		buf := make([]byte, samples*2)
		for i := 0; i < samples; i++ {
			amp := 0.4
			switch {
			case i < fade:
				amp *= float64(i) / float64(fade)
			case i > samples-fade:
				amp *= float64(samples-i) / float64(fade)
			}
			v := amp * math.Sin(2*math.Pi*n.freq*float64(i)/SampleRate)
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*math.MaxInt16)))
		}
		pcm = append(pcm, buf...)
	}
	return pcm
}

// scale returns a copy of pcm with every sample multiplied by volume.
func scale(pcm []byte, volume float64) []byte {
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(s*volume)))
	}
	return out
}
