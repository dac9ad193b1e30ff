package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
)

// SpeechThreshold is the RMS above which a clip is worth transcribing.
const SpeechThreshold = 0.01

// RMS returns the root-mean-square level of s16le PCM, normalized to [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// IsSpeech reports whether a clip is loud enough to contain speech.
func IsSpeech(rms, threshold float64) bool {
	return rms > threshold
}

// SpikeDetector flags levels far above the recent average.
type SpikeDetector struct {
	mu     sync.Mutex
	levels []float64
	size   int
	factor float64
	warmup int
}

// NewSpikeDetector keeps the last 10 levels and flags anything louder than
// 3x the mean of the levels before it, once more than 5 have been seen
// (counting the new one).
func NewSpikeDetector() *SpikeDetector {
	return &SpikeDetector{
		levels: make([]float64, 0, 10),
		size:   10,
		factor: 3,
		warmup: 5,
	}
}

// Observe records rms and reports whether it is a spike relative to the
// levels seen before it.
func (d *SpikeDetector) Observe(rms float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.levels) >= d.size {
		copy(d.levels, d.levels[1:])
		d.levels = d.levels[:len(d.levels)-1]
	}
	d.levels = append(d.levels, rms)
	if len(d.levels) <= d.warmup {
		return false
	}

	prior := d.levels[:len(d.levels)-1]
	var sum float64
	for _, l := range prior {
		sum += l
	}
	return rms > sum/float64(len(prior))*d.factor
}

// EncodeWAV wraps mono s16le PCM in a RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // PCM chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
