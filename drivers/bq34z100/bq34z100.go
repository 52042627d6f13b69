// Package bq34z100 provides a TinyGo driver for the TI bq34z100-G1
// Impedance Track fuel gauge.
//
// Design notes (datasheet SLUSBZ5 / TRM SLUUBW5 references):
// • I2C, 7-bit address 0x55; standard commands are little-endian words.
// • CONTROL() subcommands are written to 0x00/0x01 and answered on 0x00.
// • Data flash is accessed in 32-byte blocks selected by subclass and
//   offset/32; a block write only persists once the checksum register 0x60
//   holds 255 - (sum of the block bytes mod 256).
// • Calibration constants use the TI/Xemics packed 32-bit float format.
// • Flash writes are only accepted while the gauge is unsealed; the gauge
//   reseals itself on reset.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when
// both w and r are provided, without releasing the bus.
package bq34z100

import (
	"context"
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"gaugecode-go/x/conv"
	"gaugecode-go/x/timex"
)

// Errors returned by the driver (TinyGo-safe; no fmt).
var (
	ErrSealed        = errors.New("bq34z100: device sealed")
	ErrInvalidLength = errors.New("bq34z100: register length must be 1 or 2")
	ErrInvalidParam  = errors.New("bq34z100: invalid parameter")
)

// ErrCalibrationTimeout is returned when a status poll exceeds PollLimit.
// It reports Timeout() == true.
var ErrCalibrationTimeout error = timeoutError("bq34z100: calibration timeout")

type timeoutError string

func (e timeoutError) Error() string { return string(e) }
func (e timeoutError) Timeout() bool { return true }

// BusError wraps a transport failure with the transaction that caused it.
type BusError struct {
	Op  string
	Reg byte
	Err error
}

func (e *BusError) Error() string {
	var buf [8]byte
	h := conv.U32Hex(buf[:], uint32(e.Reg))
	msg := "bq34z100: " + e.Op + " 0x" + string(h[6:])
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BusError) Unwrap() error { return e.Err }

// SealState is the driver's last known view of the gauge access level.
// The gauge owns the real state; any reset or seal moves this back to Sealed.
type SealState uint8

const (
	SealUnknown SealState = iota
	Sealed
	Unsealed
)

func (s SealState) String() string {
	switch s {
	case Sealed:
		return "sealed"
	case Unsealed:
		return "unsealed"
	default:
		return "unknown"
	}
}

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() then.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds driver timing and access parameters.
type Config struct {
	Address    uint16
	UnsealKey1 uint16
	UnsealKey2 uint16

	// Settle is the wait after a flash commit and after a reset. Default 150 ms.
	Settle time.Duration
	// PollInterval spaces status polls in calibration loops. Default 1 s.
	PollInterval time.Duration
	// PollLimit bounds every status polling loop. Default 60.
	PollLimit int

	// Noise-gated sampling used by voltage/current calibration.
	SampleCount    int           // default 50
	SampleInterval time.Duration // default 150 ms
	NoiseLimit     float64       // population std-dev limit, default 100

	// Sleep defaults to a context-aware timer sleep.
	Sleep SleepFunc
}

// DefaultConfig returns the timings used by the TI reference procedures.
func DefaultConfig() Config {
	return Config{
		Address:        AddressDefault,
		UnsealKey1:     DefaultUnsealKey1,
		UnsealKey2:     DefaultUnsealKey2,
		Settle:         150 * time.Millisecond,
		PollInterval:   time.Second,
		PollLimit:      60,
		SampleCount:    50,
		SampleInterval: 150 * time.Millisecond,
		NoiseLimit:     100,
		Sleep:          timex.Sleep,
	}
}

// Validate checks fields that have no usable zero value.
func (c Config) Validate() error {
	if c.Address == 0 || c.Address > 0x7f {
		return errors.New("bq34z100: Address must be a 7-bit address")
	}
	if c.PollLimit < 0 {
		return errors.New("bq34z100: PollLimit must not be negative")
	}
	if c.SampleCount < 0 {
		return errors.New("bq34z100: SampleCount must not be negative")
	}
	if c.NoiseLimit < 0 {
		return errors.New("bq34z100: NoiseLimit must not be negative")
	}
	return nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Address == 0 {
		c.Address = def.Address
	}
	if c.UnsealKey1 == 0 && c.UnsealKey2 == 0 {
		c.UnsealKey1, c.UnsealKey2 = def.UnsealKey1, def.UnsealKey2
	}
	if c.Settle <= 0 {
		c.Settle = def.Settle
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollLimit == 0 {
		c.PollLimit = def.PollLimit
	}
	if c.SampleCount == 0 {
		c.SampleCount = def.SampleCount
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = def.SampleInterval
	}
	if c.NoiseLimit == 0 {
		c.NoiseLimit = def.NoiseLimit
	}
	if c.Sleep == nil {
		c.Sleep = def.Sleep
	}
	return c
}

// Device represents a bq34z100 on an I2C bus. All exported methods hold the
// device lock for the whole operation; the gauge keeps global state
// (seal level, calibration mode) that interleaved callers would corrupt.
type Device struct {
	mu   sync.Mutex
	i2c  drivers.I2C
	addr uint16
	cfg  Config
	seal SealState

	// Fixed buffers to avoid per-call heap allocations.
	w [BlockSize + 1]byte
	r [2]byte
}

// New constructs a Device. It does not touch the bus.
func New(i2c drivers.I2C, cfg Config) *Device {
	cfg = cfg.withDefaults()
	return &Device{
		i2c:  i2c,
		addr: cfg.Address,
		cfg:  cfg,
	}
}

// Configure applies runtime changes. Zero fields keep their current values.
func (d *Device) Configure(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Address > 0x7f || cfg.PollLimit < 0 || cfg.SampleCount < 0 || cfg.NoiseLimit < 0 {
		return ErrInvalidParam
	}
	if cfg.Address != 0 {
		d.addr = cfg.Address
		d.cfg.Address = cfg.Address
	}
	if cfg.UnsealKey1 != 0 || cfg.UnsealKey2 != 0 {
		d.cfg.UnsealKey1, d.cfg.UnsealKey2 = cfg.UnsealKey1, cfg.UnsealKey2
	}
	if cfg.Settle > 0 {
		d.cfg.Settle = cfg.Settle
	}
	if cfg.PollInterval > 0 {
		d.cfg.PollInterval = cfg.PollInterval
	}
	if cfg.PollLimit > 0 {
		d.cfg.PollLimit = cfg.PollLimit
	}
	if cfg.SampleCount > 0 {
		d.cfg.SampleCount = cfg.SampleCount
	}
	if cfg.SampleInterval > 0 {
		d.cfg.SampleInterval = cfg.SampleInterval
	}
	if cfg.NoiseLimit > 0 {
		d.cfg.NoiseLimit = cfg.NoiseLimit
	}
	if cfg.Sleep != nil {
		d.cfg.Sleep = cfg.Sleep
	}
	return nil
}

// Address returns the 7-bit bus address in use.
func (d *Device) Address() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Config returns a copy of the active configuration.
func (d *Device) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// SealState returns the last known access level.
func (d *Device) SealState() SealState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seal
}

func (d *Device) sleep(ctx context.Context, dur time.Duration) error {
	return d.cfg.Sleep(ctx, dur)
}

// settleReset is the commit tail shared by every flash update:
// settle, RESET, settle. The gauge reseals on reset.
func (d *Device) settleReset(ctx context.Context) error {
	if err := d.sleep(ctx, d.cfg.Settle); err != nil {
		return err
	}
	if err := d.reset(); err != nil {
		return err
	}
	return d.sleep(ctx, d.cfg.Settle)
}
