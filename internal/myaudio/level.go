package myaudio

import "math"

// silenceFloor is reported for all-zero input
const silenceFloor = -120.0

// Level summarizes the loudness of a block of samples
type Level struct {
	RMS      float64 `json:"rms_dbfs"`  // dBFS, silenceFloor for silence
	Peak     float64 `json:"peak_dbfs"` // dBFS of the largest magnitude
	Clipping bool    `json:"clipping"`  // a sample hit full scale
}

// CalculateLevel returns the RMS and peak level of samples in dBFS
func CalculateLevel(samples []int16) Level {
	if len(samples) == 0 {
		return Level{RMS: silenceFloor, Peak: silenceFloor}
	}

	var sum, peak float64
	clipping := false
	for _, s := range samples {
		v := math.Abs(float64(s))
		sum += v * v
		peak = max(peak, v)
		if s == math.MaxInt16 || s == math.MinInt16 {
			clipping = true
		}
	}

	rms := math.Sqrt(sum / float64(len(samples)))
	return Level{
		RMS:      toDBFS(rms),
		Peak:     toDBFS(peak),
		Clipping: clipping,
	}
}

func toDBFS(v float64) float64 {
	if v == 0 {
		return silenceFloor
	}
	return max(20*math.Log10(v/int16Scale), silenceFloor)
}
