// SPDX-License-Identifier: EPL-2.0

package audmix

import (
	"fmt"

	"github.com/ik5/audmix/device"
	"github.com/ik5/audmix/engine"
	"github.com/ik5/audmix/formats"
)

// Open builds an engine with the default decoder registry, connects it
// to the sound device and starts it. The caller owns the returned
// engine and must Shutdown it.
//
// For manual control over the registry, device or lifecycle, use the
// engine and device packages directly.
func Open(cfg engine.Config, opts ...engine.Option) (*engine.Engine, error) {
	opts = append([]engine.Option{engine.WithRegistry(formats.DefaultRegistry())}, opts...)
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	stream, err := device.Open(eng.Config(), eng.Callback)
	if err != nil {
		return nil, fmt.Errorf("opening device: %w", err)
	}

	if err := eng.Start(stream); err != nil {
		stream.Close()
		return nil, err
	}
	return eng, nil
}
