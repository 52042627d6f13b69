package bq34z100

import (
	"context"
	"errors"
	"time"
)

type flashKey struct{ class, index uint8 }

// fakeGauge is an in-memory bq34z100 that speaks the register protocol well
// enough for the driver: seal keys, block selection with checksum commit,
// CONTROL() subcommands and a small calibration state model.
type fakeGauge struct {
	addr uint16
	key1 uint16
	key2 uint16

	regs      map[byte]uint16
	responses map[Subcommand]uint16
	voltages  []uint16
	currents  []int16

	flash    map[flashKey]FlashBlock
	class    uint8
	index    uint8
	working  FlashBlock
	commits  int
	rejected int
	// dropCommits accepts the checksum but discards the data, like a gauge
	// that failed to program flash.
	dropCommits bool

	unsealed   bool
	keyPending bool
	lastSub    Subcommand
	subs       []Subcommand
	resets     int

	// Calibration model. calen sets after enterAfter ENTER_CAL commands and
	// clears after exitAfter EXIT_CAL commands. CCA/BCA stay set for
	// activeReads status reads after the routine starts.
	enterAfter  int
	exitAfter   int
	activeReads int
	enters      int
	exits       int
	calen       bool
	cca, bca    bool
	activeLeft  int

	writes [][]byte
	failOn func(w []byte) error
}

func newFakeGauge() *fakeGauge {
	return &fakeGauge{
		addr:        AddressDefault,
		key1:        DefaultUnsealKey1,
		key2:        DefaultUnsealKey2,
		regs:        map[byte]uint16{},
		responses:   map[Subcommand]uint16{},
		flash:       map[flashKey]FlashBlock{},
		enterAfter:  1,
		exitAfter:   1,
		activeReads: 1,
	}
}

var errNoDevice = errors.New("fake: no device at address")

func (g *fakeGauge) Tx(addr uint16, w, r []byte) error {
	if addr != g.addr {
		return errNoDevice
	}
	if len(w) == 0 {
		return errors.New("fake: empty write")
	}
	if g.failOn != nil {
		if err := g.failOn(w); err != nil {
			return err
		}
	}
	if len(w) > 1 {
		g.writes = append(g.writes, append([]byte(nil), w...))
		g.write(w[0], w[1:])
	}
	if len(r) > 0 {
		g.read(w[0], r)
	}
	return nil
}

func (g *fakeGauge) write(reg byte, data []byte) {
	switch {
	case reg == regControl && len(data) == 2:
		g.control(uint16(data[0]) | uint16(data[1])<<8)
	case reg == regBlockControl:
	case reg == regDataFlashClass:
		g.class = data[0]
	case reg == regDataFlashBlock:
		g.index = data[0]
		g.working = g.flash[flashKey{g.class, g.index}]
	case reg >= regBlockData && reg < regBlockChecksum:
		copy(g.working[reg-regBlockData:], data)
	case reg == regBlockChecksum:
		if !g.unsealed || data[0] != Checksum(g.working) {
			g.rejected++
			return
		}
		g.commits++
		if !g.dropCommits {
			g.flash[flashKey{g.class, g.index}] = g.working
		}
	default:
		g.regs[reg] = uint16(data[0])
	}
}

func (g *fakeGauge) control(word uint16) {
	if g.keyPending && word == g.key2 {
		g.keyPending = false
		g.unsealed = true
		return
	}
	if word == g.key1 {
		g.keyPending = true
		return
	}
	g.keyPending = false
	sub := Subcommand(word)
	g.lastSub = sub
	g.subs = append(g.subs, sub)
	switch sub {
	case SubReset:
		g.resets++
		g.unsealed = false
		g.calen = false
	case SubSealed:
		g.unsealed = false
	case SubEnterCal:
		g.enters++
		if g.enters >= g.enterAfter {
			g.calen = true
		}
	case SubExitCal:
		g.exits++
		if g.exits >= g.exitAfter {
			g.calen = false
		}
	case SubCCOffset:
		g.cca, g.activeLeft = true, g.activeReads
	case SubBoardOffset:
		g.bca, g.activeLeft = true, g.activeReads
	}
}

func (g *fakeGauge) status() uint16 {
	if g.activeLeft <= 0 {
		g.cca, g.bca = false, false
	}
	var s ControlStatus
	if g.calen {
		s |= StatusCALEN
	}
	if g.cca {
		s |= StatusCCA
	}
	if g.bca {
		s |= StatusBCA
	}
	if !g.unsealed {
		s |= StatusSS
	}
	if g.cca || g.bca {
		g.activeLeft--
	}
	return uint16(s)
}

func (g *fakeGauge) read(reg byte, r []byte) {
	var v uint16
	switch reg {
	case regControl:
		if g.lastSub == SubControlStatus {
			v = g.status()
		} else {
			v = g.responses[g.lastSub]
		}
	case regBlockData:
		copy(r, g.working[:])
		return
	case regVoltage:
		if len(g.voltages) > 0 {
			v = g.voltages[0]
			if len(g.voltages) > 1 {
				g.voltages = g.voltages[1:]
			}
		}
	case regCurrent:
		if len(g.currents) > 0 {
			v = uint16(g.currents[0])
			if len(g.currents) > 1 {
				g.currents = g.currents[1:]
			}
		}
	default:
		v = g.regs[reg]
	}
	r[0] = byte(v)
	if len(r) > 1 {
		r[1] = byte(v >> 8)
	}
}

// blockWrites returns the data-window and checksum writes, in order.
func (g *fakeGauge) blockWrites() [][]byte {
	var out [][]byte
	for _, w := range g.writes {
		if w[0] >= regBlockData && w[0] <= regBlockChecksum {
			out = append(out, w)
		}
	}
	return out
}

func (g *fakeGauge) countSub(sub Subcommand) int {
	n := 0
	for _, s := range g.subs {
		if s == sub {
			n++
		}
	}
	return n
}

type sleepRecorder struct{ slept []time.Duration }

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

func (s *sleepRecorder) total() time.Duration {
	var t time.Duration
	for _, d := range s.slept {
		t += d
	}
	return t
}

func newTestDevice() (*Device, *fakeGauge, *sleepRecorder) {
	g := newFakeGauge()
	sr := &sleepRecorder{}
	cfg := DefaultConfig()
	cfg.Sleep = sr.sleep
	return New(g, cfg), g, sr
}
