// Package periphi2c exposes a periph.io I2C bus as a tinygo drivers.I2C so
// the gauge driver can run on Linux hosts (/dev/i2c-N, FT232H, ...).
package periphi2c

import (
	"errors"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// Bus adapts an i2c.Bus. It satisfies drivers.I2C.
type Bus struct {
	bus    i2c.Bus
	closer i2c.BusCloser
}

var _ drivers.I2C = (*Bus)(nil)

var ErrClosed = errors.New("periphi2c: bus closed")

// New wraps an already opened bus. Close is a no-op for buses not opened by
// this package.
func New(b i2c.Bus) *Bus { return &Bus{bus: b} }

// Open opens a bus by name ("" selects the first registered bus) and
// optionally sets its clock. host.Init must have been called.
func Open(name string, speed physic.Frequency) (*Bus, error) {
	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, err
	}
	if speed > 0 {
		if err := bc.SetSpeed(speed); err != nil {
			bc.Close()
			return nil, err
		}
	}
	return &Bus{bus: bc, closer: bc}, nil
}

// Tx performs a write then a repeated-start read as one transaction.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if b.bus == nil {
		return ErrClosed
	}
	return b.bus.Tx(addr, w, r)
}

func (b *Bus) String() string {
	if b.bus == nil {
		return "periphi2c(closed)"
	}
	return b.bus.String()
}

// Close releases a bus opened with Open.
func (b *Bus) Close() error {
	if b.closer == nil {
		b.bus = nil
		return nil
	}
	err := b.closer.Close()
	b.bus, b.closer = nil, nil
	return err
}
