// Package transport models the serial-bus lifetime the filesystem engine
// talks to the physical card through.
//
// The session layer only ever brings the bus up once, resets it between
// mount retries, and tears it down once; all data movement happens inside
// the engine. Real hardware bindings implement Transport out of tree; SimBus
// stands in for them on a host.
package transport

import "fmt"

// BusConfig carries the bus bring-up parameters. It is always passed
// explicitly; there is no process-wide default state.
type BusConfig struct {
	// Bus is the serial bus identifier (controller index on the target).
	Bus int `mapstructure:"bus"`

	// ClockSlowHz is the clock rate used during card initialization.
	// Cards must be probed well below their operating speed.
	ClockSlowHz uint32 `mapstructure:"clock_slow_hz"`

	// ClockFastHz is the clock rate used after bring-up.
	ClockFastHz uint32 `mapstructure:"clock_fast_hz"`

	// PinClock is the clock line pin assignment.
	PinClock int `mapstructure:"pin_clock"`

	// PinDataIn is the controller-in line pin assignment.
	PinDataIn int `mapstructure:"pin_data_in"`

	// PinDataOut is the controller-out line pin assignment.
	PinDataOut int `mapstructure:"pin_data_out"`

	// PinChipSelect is the chip-select line pin assignment.
	PinChipSelect int `mapstructure:"pin_chip_select"`

	// InternalPullup enables the controller's internal pull-up resistors
	// on the data-in and chip-select lines.
	InternalPullup bool `mapstructure:"internal_pullup"`
}

// DefaultBusConfig returns the conventional wiring preset: bus 0, 400 kHz
// probe clock, 40 MHz operating clock.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Bus:            0,
		ClockSlowHz:    400_000,
		ClockFastHz:    40_000_000,
		PinClock:       10,
		PinDataIn:      11,
		PinDataOut:     12,
		PinChipSelect:  13,
		InternalPullup: true,
	}
}

// Transport is the bus lifecycle contract.
//
// Init and Deinit are called at most once per session; Reset may be called
// between mount attempts to re-probe a card that needs settling time.
type Transport interface {
	// Init configures pins and clocks and powers the bus up.
	Init(cfg BusConfig) error

	// Reset cycles the bus back to its probe state without releasing it.
	Reset()

	// Deinit releases the bus. Calling Deinit on an uninitialized
	// transport is a no-op.
	Deinit()
}

// SimBus is a Transport that only records lifecycle transitions. It backs
// host-side engines, which have no physical bus to drive, and lets tests
// assert bring-up/teardown pairing.
type SimBus struct {
	// InitErr, when set, is returned by the next Init call.
	InitErr error

	initialized bool
	inits       int
	resets      int
	deinits     int
	cfg         BusConfig
}

// Init records the configuration and marks the bus initialized.
func (b *SimBus) Init(cfg BusConfig) error {
	if b.InitErr != nil {
		err := b.InitErr
		b.InitErr = nil
		return fmt.Errorf("bus %d: %w", cfg.Bus, err)
	}
	b.cfg = cfg
	b.initialized = true
	b.inits++
	return nil
}

// Reset records a bus reset.
func (b *SimBus) Reset() {
	b.resets++
}

// Deinit marks the bus released.
func (b *SimBus) Deinit() {
	if b.initialized {
		b.initialized = false
		b.deinits++
	}
}

// Initialized reports whether the bus is currently up.
func (b *SimBus) Initialized() bool { return b.initialized }

// Inits returns the number of successful Init calls.
func (b *SimBus) Inits() int { return b.inits }

// Resets returns the number of Reset calls.
func (b *SimBus) Resets() int { return b.resets }

// Deinits returns the number of effective Deinit calls.
func (b *SimBus) Deinits() int { return b.deinits }

// Config returns the configuration passed to the last successful Init.
func (b *SimBus) Config() BusConfig { return b.cfg }
