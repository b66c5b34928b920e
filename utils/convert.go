// SPDX-License-Identifier: EPL-2.0

// Package utils holds small sample-level helpers shared across the
// module.
package utils

// Float32ToInt16 converts a normalized sample to 16-bit PCM, clamping
// out-of-range input.
func Float32ToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}

	// Scale by 32767 so +1.0 stays within the positive int16 range.
	return int16(x * 32767.0)
}

// Int16ToFloat32 converts a 16-bit PCM sample to the normalized float
// range.
func Int16ToFloat32(x int16) float32 {
	return float32(x) / 32768.0
}
