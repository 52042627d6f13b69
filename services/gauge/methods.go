package gauge

import (
	"context"
	"encoding/hex"
	"math"

	"gaugecode-go/drivers/bq34z100"
	"gaugecode-go/errcode"
	"gaugecode-go/x/jsonx"
	"gaugecode-go/x/mathx"
)

// Methods lists the control methods served on gauge/<name>/ctrl/<method>.
var Methods = []string{
	"update_design_capacity",
	"update_q_max",
	"update_design_energy",
	"update_cell_charge_voltage_range",
	"update_series_cells",
	"update_pack_configuration",
	"update_charge_termination",
	"set_current_deadband",
	"calibrate_cc_offset",
	"calibrate_board_offset",
	"calibrate_voltage_divider",
	"calibrate_sense_resistor",
	"ready",
	"seal",
	"unseal",
	"reset",
	"read_block",
	"snapshot",
}

func (s *Service) dispatch(ctx context.Context, method string, payload any) (map[string]any, error) {
	switch method {
	case "update_design_capacity":
		var r capacityReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		v, err := s16(r.MAh, 0, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return verified(s.dev.UpdateDesignCapacity(ctx, v))
	case "update_q_max":
		var r capacityReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		v, err := s16(r.MAh, 0, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return verified(s.dev.UpdateQMax(ctx, v))
	case "update_design_energy":
		var r energyReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		v, err := s16(r.Energy, 0, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return verified(s.dev.UpdateDesignEnergy(ctx, v))
	case "update_cell_charge_voltage_range":
		var r cellVoltageReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		var mv [3]uint16
		for i, p := range []*int{r.T1T2, r.T2T3, r.T3T4} {
			v, err := u16(p)
			if err != nil {
				return nil, err
			}
			mv[i] = v
		}
		return verified(s.dev.UpdateCellChargeVoltageRange(ctx, mv[0], mv[1], mv[2]))
	case "update_series_cells":
		var r cellsReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		n, err := u8(r.Cells, 1, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		return verified(s.dev.UpdateNumberOfSeriesCells(ctx, n))
	case "update_pack_configuration":
		var r packConfigReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		v, err := u16(r.Value)
		if err != nil {
			return nil, err
		}
		return verified(s.dev.UpdatePackConfiguration(ctx, bq34z100.PackConfig(v)))
	case "update_charge_termination":
		var r terminationReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		ct, err := r.toDriver()
		if err != nil {
			return nil, err
		}
		return verified(s.dev.UpdateChargeTerminationParameters(ctx, ct))
	case "set_current_deadband":
		var r deadbandReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		v, err := u8(r.MA, 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		return nil, s.dev.SetCurrentDeadband(ctx, v)

	case "calibrate_cc_offset":
		return nil, s.dev.CalibrateCCOffset(ctx)
	case "calibrate_board_offset":
		return nil, s.dev.CalibrateBoardOffset(ctx)
	case "calibrate_voltage_divider":
		var r voltageCalReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		mv, err := u16(r.AppliedMV)
		if err != nil {
			return nil, err
		}
		cells, err := u8(r.Cells, 1, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		return calibrated(s.dev.CalibrateVoltageDivider(ctx, mv, cells))
	case "calibrate_sense_resistor":
		var r currentCalReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		ma, err := s16(r.AppliedMA, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		if ma == 0 {
			return nil, errcode.InvalidParams
		}
		return calibrated(s.dev.CalibrateSenseResistor(ctx, ma))

	case "ready":
		return nil, s.dev.Ready(ctx)
	case "seal":
		return nil, s.dev.Seal(ctx)
	case "unseal":
		return nil, s.dev.Unseal(ctx)
	case "reset":
		return nil, s.dev.Reset(ctx)
	case "read_block":
		var r blockReq
		if err := decode(method, payload, &r); err != nil {
			return nil, err
		}
		sc, err := u8(r.Subclass, 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		if !mathx.Between(r.Offset, 0, math.MaxUint8) {
			return nil, errcode.InvalidParams
		}
		if err := s.dev.Unseal(ctx); err != nil {
			return nil, err
		}
		blk, err := s.dev.ReadFlashBlock(sc, uint8(r.Offset))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"subclass": sc,
			"block":    r.Offset / bq34z100.BlockSize,
			"data":     hex.EncodeToString(blk[:]),
			"checksum": blk.Checksum(),
		}, nil
	case "snapshot":
		return telemetryPayload(s.dev.Snapshot()), nil
	default:
		return nil, errcode.Unsupported
	}
}

func decode[T any](method string, payload any, dst *T) error {
	return errcode.Wrap(errcode.InvalidPayload, method, jsonx.DecodeJSON(payload, dst))
}

// verified turns a setter's read-back result into a reply.
func verified(ok bool, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.VerifyFailed
	}
	return map[string]any{"verified": true}, nil
}

func calibrated(res bq34z100.CalibrationResult, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if res.Aborted {
		return nil, &errcode.E{C: errcode.NoiseGate, Msg: "sample deviation above limit"}
	}
	return map[string]any{"mean": res.Mean, "stddev": res.StdDev}, nil
}

func required(p *int, lo, hi int) (int, error) {
	if p == nil || !mathx.Between(*p, lo, hi) {
		return 0, errcode.InvalidParams
	}
	return *p, nil
}

func s16(p *int, lo, hi int) (int16, error) {
	v, err := required(p, lo, hi)
	return int16(v), err
}

func u16(p *int) (uint16, error) {
	v, err := required(p, 0, math.MaxUint16)
	return uint16(v), err
}

func u8(p *int, lo, hi int) (uint8, error) {
	v, err := required(p, lo, hi)
	return uint8(v), err
}

func (r terminationReq) toDriver() (bq34z100.ChargeTermination, error) {
	in16 := func(v int) bool { return mathx.Between(v, math.MinInt16, math.MaxInt16) }
	in8 := func(v int) bool { return mathx.Between(v, math.MinInt8, math.MaxInt8) }
	if !in16(r.TaperCurrent) || !in16(r.MinTaperCapacity) || !in16(r.CellTaperVoltage) ||
		!mathx.Between(r.TaperWindow, 0, math.MaxUint8) ||
		!in8(r.TCASet) || !in8(r.TCAClear) || !in8(r.FCSet) || !in8(r.FCClear) {
		return bq34z100.ChargeTermination{}, errcode.InvalidParams
	}
	return bq34z100.ChargeTermination{
		TaperCurrent:     int16(r.TaperCurrent),
		MinTaperCapacity: int16(r.MinTaperCapacity),
		CellTaperVoltage: int16(r.CellTaperVoltage),
		TaperWindow:      uint8(r.TaperWindow),
		TCASet:           int8(r.TCASet),
		TCAClear:         int8(r.TCAClear),
		FCSet:            int8(r.FCSet),
		FCClear:          int8(r.FCClear),
	}, nil
}
