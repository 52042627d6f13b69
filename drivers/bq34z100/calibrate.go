package bq34z100

import (
	"context"
	"math"

	"gaugecode-go/x/mathx"
)

// Calibration scale constants from the TI calibration procedure.
const (
	ccGainScale       = 4.768
	ccDeltaScale      = 5677445.6
	cellVoltScale     = 2800 * 5000 // per series cell
	defaultNoiseLimit = 100
)

// CalibrationResult reports the sampled statistics of a noise-gated routine.
// Aborted is set when the standard deviation exceeded the noise limit; the
// gauge is left untouched and no error is returned in that case.
type CalibrationResult struct {
	Mean    float64
	StdDev  float64
	Aborted bool
}

// pollUntil runs step (may be nil), waits PollInterval and reads
// CONTROL_STATUS, until done reports true. Bounded by PollLimit.
func (d *Device) pollUntil(ctx context.Context, step func() error, done func(ControlStatus) bool) error {
	for i := 0; i < d.cfg.PollLimit; i++ {
		if step != nil {
			if err := step(); err != nil {
				return err
			}
		}
		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			return err
		}
		st, err := d.controlStatus()
		if err != nil {
			return err
		}
		if done(st) {
			return nil
		}
	}
	return ErrCalibrationTimeout
}

func (d *Device) subcommand(sub Subcommand) func() error {
	return func() error {
		_, err := d.readControl(sub)
		return err
	}
}

func statusSet(mask ControlStatus) func(ControlStatus) bool {
	return func(s ControlStatus) bool { return s&mask != 0 }
}

func statusClear(mask ControlStatus) func(ControlStatus) bool {
	return func(s ControlStatus) bool { return s&mask == 0 }
}

func (d *Device) enterCalibration(ctx context.Context) error {
	if err := d.unseal(); err != nil {
		return err
	}
	enter := func() error {
		if _, err := d.readControl(SubCalEnable); err != nil {
			return err
		}
		_, err := d.readControl(SubEnterCal)
		return err
	}
	return d.pollUntil(ctx, enter, statusSet(StatusCALEN))
}

func (d *Device) exitCalibration(ctx context.Context) error {
	if err := d.pollUntil(ctx, d.subcommand(SubExitCal), statusClear(StatusCALEN)); err != nil {
		return err
	}
	return d.settleReset(ctx)
}

// offsetCalibration drives CC or board offset calibration: start the
// routine until mask sets, wait until it clears, save, leave CAL mode.
func (d *Device) offsetCalibration(ctx context.Context, start Subcommand, mask ControlStatus) error {
	if err := d.enterCalibration(ctx); err != nil {
		return err
	}
	if err := d.pollUntil(ctx, d.subcommand(start), statusSet(mask)); err != nil {
		return err
	}
	if err := d.pollUntil(ctx, nil, statusClear(mask)); err != nil {
		return err
	}
	if _, err := d.readControl(SubCCOffsetSave); err != nil {
		return err
	}
	return d.exitCalibration(ctx)
}

// EnterCalibration unseals and repeats CAL_ENABLE + ENTER_CAL until CALEN
// is reported.
func (d *Device) EnterCalibration(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enterCalibration(ctx)
}

// ExitCalibration repeats EXIT_CAL until CALEN clears, then resets.
func (d *Device) ExitCalibration(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitCalibration(ctx)
}

// CalibrateCCOffset runs the coulomb counter offset calibration.
// No current may flow during the routine.
func (d *Device) CalibrateCCOffset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offsetCalibration(ctx, SubCCOffset, StatusCCA)
}

// CalibrateBoardOffset runs the board offset calibration.
// No current may flow during the routine.
func (d *Device) CalibrateBoardOffset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offsetCalibration(ctx, SubBoardOffset, StatusBoardOffsetMask)
}

// sample takes SampleCount readings SampleInterval apart.
func (d *Device) sample(ctx context.Context, read func() (float64, error)) (CalibrationResult, error) {
	xs := make([]float64, 0, d.cfg.SampleCount)
	for i := 0; i < d.cfg.SampleCount; i++ {
		v, err := read()
		if err != nil {
			return CalibrationResult{}, err
		}
		xs = append(xs, v)
		if err := d.sleep(ctx, d.cfg.SampleInterval); err != nil {
			return CalibrationResult{}, err
		}
	}
	mean, sd := mathx.MeanStdDev(xs)
	limit := d.cfg.NoiseLimit
	if limit <= 0 {
		limit = defaultNoiseLimit
	}
	return CalibrationResult{Mean: mean, StdDev: sd, Aborted: sd > limit}, nil
}

// CalibrateVoltageDivider scales the voltage divider so the measured pack
// voltage matches appliedMilliV, then updates Flash Update OK Cell Volt for
// the given series cell count.
func (d *Device) CalibrateVoltageDivider(ctx context.Context, appliedMilliV uint16, cells uint8) (CalibrationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cells == 0 {
		return CalibrationResult{}, ErrInvalidParam
	}
	res, err := d.sample(ctx, func() (float64, error) {
		v, err := d.voltage()
		return float64(v), err
	})
	if err != nil || res.Aborted {
		return res, err
	}
	if res.Mean == 0 {
		return res, ErrInvalidParam
	}

	if err := d.unseal(); err != nil {
		return res, err
	}
	blk, err := d.readFlashBlock(subclassCalibrationData, 0)
	if err != nil {
		return res, err
	}
	current := blk.Uint16(offVoltageDivider)
	q := math.Trunc((float64(appliedMilliV) / res.Mean) * float64(current))
	if q < 1 || q > math.MaxUint16 {
		return res, ErrInvalidParam
	}
	divider := uint16(q)
	blk.PutUint16(offVoltageDivider, divider)
	if err := d.writeBlockBytes(blk, []uint8{offVoltageDivider, offVoltageDivider + 1}); err != nil {
		return res, err
	}
	if err := d.sleep(ctx, d.cfg.Settle); err != nil {
		return res, err
	}

	if err := d.unseal(); err != nil {
		return res, err
	}
	blk, err = d.readFlashBlock(subclassPowerVoltage, 0)
	if err != nil {
		return res, err
	}
	hi, lo := splitCellVoltage(flashUpdateCellVoltage(cells, divider))
	blk[offFlashUpdateOKCellVolt] = hi
	blk[offFlashUpdateOKCellVolt+1] = lo
	if err := d.writeBlockBytes(blk, []uint8{offFlashUpdateOKCellVolt, offFlashUpdateOKCellVolt + 1}); err != nil {
		return res, err
	}
	return res, d.settleReset(ctx)
}

// flashUpdateCellVoltage derives Flash Update OK Cell Volt from the new
// divider, truncated to int16.
func flashUpdateCellVoltage(cells uint8, divider uint16) int16 {
	q := float64(int64(cellVoltScale)*int64(cells)) / float64(divider)
	return int16(int64(math.Trunc(q)))
}

// splitCellVoltage keeps the reference tooling's byte split: the high byte
// is the low 8 bits of v<<8 (always zero), the low byte is v&0xff.
// Pending verification against a device trace; see DESIGN.md.
func splitCellVoltage(v int16) (hi, lo byte) {
	return byte(uint16(v) << 8), byte(uint16(v) & 0xff)
}

// CalibrateSenseResistor rescales CC Gain and CC Delta so the measured
// current matches appliedMilliA (negative while discharging).
func (d *Device) CalibrateSenseResistor(ctx context.Context, appliedMilliA int16) (CalibrationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if appliedMilliA == 0 {
		return CalibrationResult{}, ErrInvalidParam
	}
	res, err := d.sample(ctx, func() (float64, error) {
		v, err := d.current()
		return float64(v), err
	})
	if err != nil || res.Aborted {
		return res, err
	}

	if err := d.unseal(); err != nil {
		return res, err
	}
	blk, err := d.readFlashBlock(subclassCalibrationData, 0)
	if err != nil {
		return res, err
	}
	gain := XemicsToFloat(blk.Uint32(offCCGain))
	if gain == 0 || res.Mean == 0 {
		return res, ErrInvalidParam
	}
	gainResistance := ccGainScale / gain
	scale := (res.Mean * gainResistance) / float64(appliedMilliA)

	blk.PutUint32(offCCGain, FloatToXemics(ccGainScale/scale))
	blk.PutUint32(offCCDelta, FloatToXemics(ccDeltaScale/scale))
	offs := []uint8{
		offCCGain, offCCGain + 1, offCCGain + 2, offCCGain + 3,
		offCCDelta, offCCDelta + 1, offCCDelta + 2, offCCDelta + 3,
	}
	if err := d.writeBlockBytes(blk, offs); err != nil {
		return res, err
	}
	return res, d.settleReset(ctx)
}
