// Package dsp provides digital signal processing utilities for audio
package dsp

import "math"

// Clear zeroes a buffer - no allocations
func Clear(buffer []float32) {
	for i := range buffer {
		buffer[i] = 0
	}
}

// SoftClip applies soft saturation to limit peaks
func SoftClip(buffer []float32, threshold float32) {
	for i := range buffer {
		sample := buffer[i]
		if sample > threshold {
			buffer[i] = threshold + (1.0-threshold)*float32(math.Tanh(float64(sample-threshold)))
		} else if sample < -threshold {
			buffer[i] = -threshold + (1.0-threshold)*float32(math.Tanh(float64(sample+threshold)))
		}
	}
}
