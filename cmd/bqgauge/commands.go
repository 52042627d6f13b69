package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli"

	"gaugecode-go/bus"
	"gaugecode-go/drivers/bq34z100"
	"gaugecode-go/services/gauge"
)

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:   "status",
			Usage:  "print identity and telemetry",
			Action: withGauge(status),
		},
		{
			Name:      "block",
			Usage:     "dump the data-flash block holding offset in subclass",
			ArgsUsage: "<subclass> <offset>",
			Action:    withGauge(dumpBlock),
		},
		setter("set-design-capacity", "<mAh>", func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
			return d.UpdateDesignCapacity(ctx, int16(v[0]))
		}, bits16s),
		setter("set-qmax", "<mAh>", func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
			return d.UpdateQMax(ctx, int16(v[0]))
		}, bits16s),
		setter("set-design-energy", "<energy>", func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
			return d.UpdateDesignEnergy(ctx, int16(v[0]))
		}, bits16s),
		setter("set-cell-voltage", "<t1-t2 mV> <t2-t3 mV> <t3-t4 mV>", func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
			return d.UpdateCellChargeVoltageRange(ctx, uint16(v[0]), uint16(v[1]), uint16(v[2]))
		}, bits16u, bits16u, bits16u),
		setter("set-series-cells", "<cells>", func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
			return d.UpdateNumberOfSeriesCells(ctx, uint8(v[0]))
		}, bits8u),
		setter("set-pack-config", "<word>", func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
			return d.UpdatePackConfiguration(ctx, bq34z100.PackConfig(v[0]))
		}, bits16u),
		setter("set-termination", "<taper mA> <min taper cap> <cell taper mV> <window s> <tca set> <tca clear> <fc set> <fc clear>",
			func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
				return d.UpdateChargeTerminationParameters(ctx, bq34z100.ChargeTermination{
					TaperCurrent:     int16(v[0]),
					MinTaperCapacity: int16(v[1]),
					CellTaperVoltage: int16(v[2]),
					TaperWindow:      uint8(v[3]),
					TCASet:           int8(v[4]),
					TCAClear:         int8(v[5]),
					FCSet:            int8(v[6]),
					FCClear:          int8(v[7]),
				})
			}, bits16s, bits16s, bits16s, bits8u, bits8s, bits8s, bits8s, bits8s),
		setter("set-deadband", "<mA>", func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error) {
			return true, d.SetCurrentDeadband(ctx, uint8(v[0]))
		}, bits8u),
		{
			Name:  "calibrate",
			Usage: "run a calibration routine",
			Subcommands: []cli.Command{
				{
					Name:   "cc-offset",
					Usage:  "coulomb counter offset (no current may flow)",
					Action: withGauge(func(ctx context.Context, _ *cli.Context, d *bq34z100.Device) error { return d.CalibrateCCOffset(ctx) }),
				},
				{
					Name:   "board-offset",
					Usage:  "board offset (no current may flow)",
					Action: withGauge(func(ctx context.Context, _ *cli.Context, d *bq34z100.Device) error { return d.CalibrateBoardOffset(ctx) }),
				},
				{
					Name:      "voltage",
					Usage:     "voltage divider against a measured pack voltage",
					ArgsUsage: "<applied mV> <series cells>",
					Action:    withGauge(calibrateVoltage),
				},
				{
					Name:      "current",
					Usage:     "sense resistor against a measured current (negative when discharging)",
					ArgsUsage: "<applied mA>",
					Action:    withGauge(calibrateCurrent),
				},
			},
		},
		{
			Name:   "ready",
			Usage:  "enable Impedance Track learning and seal",
			Action: withGauge(func(ctx context.Context, _ *cli.Context, d *bq34z100.Device) error { return d.Ready(ctx) }),
		},
		{
			Name:   "serve",
			Usage:  "run the gauge service and log its publications",
			Action: withGauge(serve),
		},
	}
}

// Argument ranges.
type argRange struct{ lo, hi int64 }

var (
	bits8u  = argRange{0, 0xff}
	bits8s  = argRange{-128, 127}
	bits16u = argRange{0, 0xffff}
	bits16s = argRange{-32768, 32767}
)

func parseArgs(c *cli.Context, ranges ...argRange) ([]int64, error) {
	if c.NArg() != len(ranges) {
		return nil, errors.Errorf("want %d arguments, got %d", len(ranges), c.NArg())
	}
	out := make([]int64, len(ranges))
	for i, r := range ranges {
		v, err := strconv.ParseInt(c.Args().Get(i), 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		if v < r.lo || v > r.hi {
			return nil, errors.Errorf("argument %d out of range [%d, %d]", i+1, r.lo, r.hi)
		}
		out[i] = v
	}
	return out, nil
}

type setFunc func(ctx context.Context, d *bq34z100.Device, v []int64) (bool, error)

// setter builds a command that parses integer arguments and runs one
// update-verify operation.
func setter(name, args string, fn setFunc, ranges ...argRange) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     "write and verify " + name[len("set-"):],
		ArgsUsage: args,
		Action: withGauge(func(ctx context.Context, c *cli.Context, d *bq34z100.Device) error {
			v, err := parseArgs(c, ranges...)
			if err != nil {
				return err
			}
			ok, err := fn(ctx, d, v)
			if err != nil {
				return errors.Wrap(err, name)
			}
			if !ok {
				return errors.Errorf("%s: read-back did not match", name)
			}
			log.WithField("op", name).Info("written and verified")
			return nil
		}),
	}
}

func status(_ context.Context, _ *cli.Context, d *bq34z100.Device) error {
	id, err := d.Identify()
	if err != nil {
		return errors.Wrap(err, "identify")
	}
	s := d.Snapshot()
	fmt.Printf("device 0x%04x fw 0x%04x hw 0x%04x chem 0x%04x df 0x%04x\n",
		id.DeviceType, id.FWVersion, id.HWVersion, id.ChemID, id.DFVersion)
	fmt.Printf("voltage %d mV  current %d mA  avg %d mA  temp %.1f C\n",
		s.Voltage_mV, s.Current_mA, s.AvgCurrent_mA, float64(s.Temp_mC)/1000)
	fmt.Printf("soc %d%%  soh %d%%  remaining %d mAh  full %d mAh  cycles %d\n",
		s.SoC, s.SoH&0xff, s.Remaining_mAh, s.FullCharge_mAh, s.CycleCount)
	fmt.Printf("flags 0x%08x  control 0x%04x  calibration %v\n",
		uint32(s.Flags), uint16(s.Status), s.Status.Has(bq34z100.StatusCALEN))
	return nil
}

func dumpBlock(ctx context.Context, c *cli.Context, d *bq34z100.Device) error {
	v, err := parseArgs(c, bits8u, bits8u)
	if err != nil {
		return err
	}
	if err := d.Unseal(ctx); err != nil {
		return errors.Wrap(err, "unseal")
	}
	blk, err := d.ReadFlashBlock(uint8(v[0]), uint8(v[1]))
	if err != nil {
		return errors.Wrapf(err, "read subclass %d offset %d", v[0], v[1])
	}
	fmt.Printf("subclass %d block %d checksum 0x%02x\n", v[0], v[1]/bq34z100.BlockSize, blk.Checksum())
	fmt.Print(hex.Dump(blk[:]))
	return nil
}

func reportCalibration(op string, res bq34z100.CalibrationResult, err error) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	entry := log.WithFields(log.Fields{"op": op, "mean": res.Mean, "stddev": res.StdDev})
	if res.Aborted {
		entry.Warn("samples too noisy, gauge left unchanged")
		return nil
	}
	entry.Info("calibration written")
	return nil
}

func calibrateVoltage(ctx context.Context, c *cli.Context, d *bq34z100.Device) error {
	v, err := parseArgs(c, bits16u, argRange{1, 0xff})
	if err != nil {
		return err
	}
	res, err := d.CalibrateVoltageDivider(ctx, uint16(v[0]), uint8(v[1]))
	return reportCalibration("calibrate voltage", res, err)
}

func calibrateCurrent(ctx context.Context, c *cli.Context, d *bq34z100.Device) error {
	v, err := parseArgs(c, bits16s)
	if err != nil {
		return err
	}
	if v[0] == 0 {
		return errors.New("applied current must not be zero")
	}
	res, err := d.CalibrateSenseResistor(ctx, int16(v[0]))
	return reportCalibration("calibrate current", res, err)
}

func serve(ctx context.Context, _ *cli.Context, d *bq34z100.Device) error {
	b := bus.NewBus(32)
	p := params()
	svc := gauge.New(b.NewConnection("gauge"), d, p, log.WithField("component", "gauge"))

	mon := b.NewConnection("monitor")
	sub := mon.Subscribe(bus.T("gauge", "#"))
	defer mon.Disconnect()
	go func() {
		for m := range sub.Channel() {
			log.WithField("topic", topicString(m.Topic)).Debug(m.Payload)
		}
	}()

	log.WithFields(log.Fields{"gauge": p.Name, "config": viper.ConfigFileUsed()}).Info("serving")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func topicString(t bus.Topic) string {
	parts := make([]string, len(t))
	for i, tok := range t {
		parts[i] = fmt.Sprint(tok)
	}
	return strings.Join(parts, "/")
}
