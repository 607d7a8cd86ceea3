package speech

import "math"

const (
	speechBandLowHz  = 300
	speechBandHighHz = 3400
	defaultRate      = 48000
)

// Level reduces an analyser frame to a 0-100 intensity, weighting overall loudness and
// energy in the speech band.
func Level(f Frame) float64 {
	var rms float64
	if len(f.TimeDomain) > 0 {
		var sum float64
		for _, b := range f.TimeDomain {
			v := (float64(b) - 128) / 128
			sum += v * v
		}
		rms = math.Sqrt(sum / float64(len(f.TimeDomain)))
	}

	var band float64
	if n := len(f.Frequency); n > 0 {
		rate := f.SampleRate
		if rate <= 0 {
			rate = defaultRate
		}
		binHz := rate / 2 / float64(n)
		lo := int(speechBandLowHz / binHz)
		hi := int(speechBandHighHz / binHz)
		if hi >= n {
			hi = n - 1
		}
		if lo <= hi {
			var sum float64
			for _, b := range f.Frequency[lo : hi+1] {
				sum += float64(b)
			}
			band = sum / float64(hi-lo+1)
		}
	}

	return math.Max(0, math.Min(100, rms*300+band/255*200))
}
