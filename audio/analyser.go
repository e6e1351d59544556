// Package audio turns media streams into something a person can hear and see:
// speaking detection, ffmpeg capture, ffplay playback and the call registry
// deciding who sends audio to whom.
package audio

import (
	"math"
	"math/cmplx"

	"panel-lab/media"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	FFTSize          = 256
	MinDecibels      = -100.0
	MaxDecibels      = -30.0
	DefaultSmoothing = 0.8
	DefaultThreshold = 20
)

// Analyser reproduces the byte frequency data of a browser AnalyserNode:
// Blackman-windowed FFT over the latest FFTSize samples, smoothed over time,
// converted to decibels and scaled into 0..255 between MinDecibels and MaxDecibels.
type Analyser struct {
	smoothing float64
	fft       *fourier.FFT
	window    []float64
	samples   []float64
	windowed  []float64
	coeffs    []complex128
	smoothed  []float64
	bytes     []byte
}

func NewAnalyser(smoothing float64) *Analyser {
	if smoothing < 0 || smoothing >= 1 {
		smoothing = DefaultSmoothing
	}
	return &Analyser{
		smoothing: smoothing,
		fft:       fourier.NewFFT(FFTSize),
		window:    blackman(FFTSize),
		samples:   make([]float64, FFTSize),
		windowed:  make([]float64, FFTSize),
		coeffs:    make([]complex128, FFTSize/2+1),
		smoothed:  make([]float64, FFTSize/2),
		bytes:     make([]byte, FFTSize/2),
	}
}

// Push appends a frame to the time-domain buffer and returns the byte
// frequency data for the updated buffer. The slice is reused by the next call.
func (a *Analyser) Push(f media.Frame) []byte {
	a.shift(f)
	for i, s := range a.samples {
		a.windowed[i] = s * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	scale := 255 / (MaxDecibels - MinDecibels)
	for k := range a.smoothed {
		magnitude := cmplx.Abs(a.coeffs[k]) / FFTSize
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*magnitude
		db := MinDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := math.Floor(scale * (db - MinDecibels))
		a.bytes[k] = byte(math.Max(0, math.Min(255, v)))
	}
	return a.bytes
}

// Level is the average of the byte frequency data after pushing f.
func (a *Analyser) Level(f media.Frame) float64 {
	data := a.Push(f)
	var sum int
	for _, b := range data {
		sum += int(b)
	}
	return float64(sum) / float64(len(data))
}

func (a *Analyser) shift(f media.Frame) {
	if len(f) >= FFTSize {
		f = f[len(f)-FFTSize:]
	}
	keep := FFTSize - len(f)
	copy(a.samples, a.samples[len(f):])
	for i, s := range f {
		a.samples[keep+i] = float64(s) / 32768
	}
}

func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

// Detector flags a stream as speaking while its level stays above a threshold.
type Detector struct {
	analyser  *Analyser
	threshold float64
	speaking  bool
}

func NewDetector(threshold int, smoothing float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{analyser: NewAnalyser(smoothing), threshold: float64(threshold)}
}

// Sample processes one frame. changed is true when the speaking state flipped.
func (d *Detector) Sample(f media.Frame) (speaking, changed bool) {
	now := d.analyser.Level(f) > d.threshold
	changed = now != d.speaking
	d.speaking = now
	return now, changed
}

func (d *Detector) Speaking() bool { return d.speaking }
