// SPDX-License-Identifier: EPL-2.0

// Package device opens the sound device through portaudio and drives an
// engine's callback from the real-time audio thread.
//
// The engine itself only knows the engine.OutputStream interface, so
// tests and offline tools can pull frames without a device; this package
// is the one place that touches the driver.
package device
