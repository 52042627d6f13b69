package bq34z100

import "context"

// field is one big-endian (width 2) or single-byte (width 1) value inside a
// data-flash block.
type field struct {
	off   uint8
	width uint8
	val   uint16
}

func u16(off uint8, v uint16) field { return field{off: off, width: 2, val: v} }
func u8(off uint8, v uint8) field   { return field{off: off, width: 1, val: uint16(v)} }

// zero16 forces a paired counter (e.g. cycle count) to zero.
func zero16(off uint8) field { return u16(off, 0) }

// paramSpec names the block a setter touches and the fields it writes.
type paramSpec struct {
	subClass uint8
	offset   uint8
	fields   []field
}

func (p paramSpec) apply(blk *FlashBlock) []uint8 {
	var offs []uint8
	for _, f := range p.fields {
		if f.width == 1 {
			blk[f.off] = byte(f.val)
			offs = append(offs, f.off)
			continue
		}
		blk.PutUint16(int(f.off), f.val)
		offs = append(offs, f.off, f.off+1)
	}
	return offs
}

func (p paramSpec) matches(blk FlashBlock) bool {
	for _, f := range p.fields {
		if f.width == 1 {
			if uint16(blk[f.off]) != f.val {
				return false
			}
			continue
		}
		if blk.Uint16(int(f.off)) != f.val {
			return false
		}
	}
	return true
}

// update runs the unseal, mutate, commit, reset sequence and, when verify is
// set, unseals again and compares every field bit-exactly. A mismatch is
// reported as false with a nil error; nothing is rolled back or retried.
func (d *Device) update(ctx context.Context, p paramSpec, verify bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := d.unseal(); err != nil {
		return false, err
	}
	blk, err := d.readFlashBlock(p.subClass, p.offset)
	if err != nil {
		return false, err
	}
	offs := p.apply(&blk)
	if err := d.writeBlockBytes(blk, offs); err != nil {
		return false, err
	}
	if err := d.settleReset(ctx); err != nil {
		return false, err
	}
	if !verify {
		return true, nil
	}

	if err := d.unseal(); err != nil {
		return false, err
	}
	got, err := d.readFlashBlock(p.subClass, p.offset)
	if err != nil {
		return false, err
	}
	return p.matches(got), nil
}

func (d *Device) runUpdate(ctx context.Context, p paramSpec) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.update(ctx, p, true)
}

// UpdateDesignCapacity writes Design Capacity and CC Threshold (mAh) and
// clears the cycle count.
func (d *Device) UpdateDesignCapacity(ctx context.Context, mAh int16) (bool, error) {
	return d.runUpdate(ctx, paramSpec{
		subClass: subclassData,
		fields: []field{
			zero16(offCycleCount48),
			u16(offCCThreshold, uint16(mAh)),
			u16(offDesignCapacity, uint16(mAh)),
		},
	})
}

// UpdateQMax writes Qmax Cell 0 (mAh) and clears the cycle count.
func (d *Device) UpdateQMax(ctx context.Context, mAh int16) (bool, error) {
	return d.runUpdate(ctx, paramSpec{
		subClass: subclassITCfgQmax,
		fields: []field{
			u16(offQmax, uint16(mAh)),
			zero16(offCycleCount82),
		},
	})
}

// UpdateDesignEnergy writes Design Energy (mWh, scaled by Design Energy Scale).
func (d *Device) UpdateDesignEnergy(ctx context.Context, energy int16) (bool, error) {
	return d.runUpdate(ctx, paramSpec{
		subClass: subclassData,
		fields:   []field{u16(offDesignEnergy, uint16(energy))},
	})
}

// UpdateCellChargeVoltageRange writes the per-cell charge voltages (mV) for
// the T1-T2, T2-T3 and T3-T4 temperature ranges.
func (d *Device) UpdateCellChargeVoltageRange(ctx context.Context, t1t2, t2t3, t3t4 uint16) (bool, error) {
	return d.runUpdate(ctx, paramSpec{
		subClass: subclassData,
		fields: []field{
			u16(offCellChgVT1T2, t1t2),
			u16(offCellChgVT2T3, t2t3),
			u16(offCellChgVT3T4, t3t4),
		},
	})
}

// UpdateNumberOfSeriesCells writes Number of Series Cells.
func (d *Device) UpdateNumberOfSeriesCells(ctx context.Context, cells uint8) (bool, error) {
	if cells == 0 {
		return false, ErrInvalidParam
	}
	return d.runUpdate(ctx, paramSpec{
		subClass: subclassRegisters,
		fields:   []field{u8(offSeriesCells, cells)},
	})
}

// UpdatePackConfiguration writes the Pack Configuration register.
func (d *Device) UpdatePackConfiguration(ctx context.Context, cfg PackConfig) (bool, error) {
	return d.runUpdate(ctx, paramSpec{
		subClass: subclassRegisters,
		fields:   []field{u16(offPackConfig, uint16(cfg))},
	})
}

// ChargeTermination holds the charge termination subclass parameters.
type ChargeTermination struct {
	TaperCurrent     int16 // mA
	MinTaperCapacity int16 // 0.01 mAh
	CellTaperVoltage int16 // mV
	TaperWindow      uint8 // s
	TCASet           int8  // %
	TCAClear         int8  // %
	FCSet            int8  // %
	FCClear          int8  // %
}

// UpdateChargeTerminationParameters writes all charge termination fields.
func (d *Device) UpdateChargeTerminationParameters(ctx context.Context, ct ChargeTermination) (bool, error) {
	return d.runUpdate(ctx, paramSpec{
		subClass: subclassChargeTermination,
		fields: []field{
			u16(offTaperCurrent, uint16(ct.TaperCurrent)),
			u16(offMinTaperCapacity, uint16(ct.MinTaperCapacity)),
			u16(offCellTaperVoltage, uint16(ct.CellTaperVoltage)),
			u8(offTaperWindow, ct.TaperWindow),
			u8(offTCASet, uint8(ct.TCASet)),
			u8(offTCAClear, uint8(ct.TCAClear)),
			u8(offFCSet, uint8(ct.FCSet)),
			u8(offFCClear, uint8(ct.FCClear)),
		},
	})
}

// SetCurrentDeadband writes Deadband (mA). The write is committed but not
// read back.
func (d *Device) SetCurrentDeadband(ctx context.Context, mA uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.update(ctx, paramSpec{
		subClass: subclassCurrent,
		fields:   []field{u8(offDeadband, mA)},
	}, false)
	return err
}
