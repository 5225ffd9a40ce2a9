package myaudio

// int16Scale maps the int16 range onto [-1, 1)
const int16Scale = 32768.0

// Normalize converts src to unit-range floats into dst: dst[i] = src[i] / 32768.
// It converts min(len(dst), len(src)) samples and does not clip or dither.
func Normalize(dst []float32, src []int16) {
	n := min(len(dst), len(src))
	dst, src = dst[:n], src[:n]
	for i, s := range src {
		dst[i] = float32(s) / int16Scale
	}
}
