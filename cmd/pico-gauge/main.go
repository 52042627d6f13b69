//go:build rp2040 || rp2350

// Command pico-gauge reads a bq34z100 on i2c0 and prints a telemetry line
// over USB CDC once a second.
package main

import (
	"context"
	"machine"
	"time"

	"gaugecode-go/drivers/bq34z100"
	"gaugecode-go/x/conv"
)

// field prints "name=value " without fmt.
func field(buf []byte, name string, v int64) {
	print(name, "=", string(conv.Itoa(buf, v)), " ")
}

func ufield(buf []byte, name string, v uint64) {
	print(name, "=", string(conv.Utoa(buf, v)), " ")
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[gauge] boot")

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 100 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	}); err != nil {
		println("[gauge] i2c0:", err.Error())
	}

	dev := bq34z100.New(i2c, bq34z100.DefaultConfig())
	ctx := context.Background()
	if err := dev.Ready(ctx); err != nil {
		println("[gauge] ready:", err.Error())
	}
	if id, err := dev.Identify(); err == nil {
		var buf [20]byte
		print("[gauge] ")
		ufield(buf[:], "type", uint64(id.DeviceType))
		ufield(buf[:], "fw", uint64(id.FWVersion))
		ufield(buf[:], "chem", uint64(id.ChemID))
		println()
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	var (
		snap bq34z100.Snapshot
		buf  [20]byte
	)
	for t := range tick.C {
		dev.SnapshotInto(&snap)
		print(t.Format("15:04:05"), " ")
		ufield(buf[:], "mV", uint64(snap.Voltage_mV))
		field(buf[:], "mA", int64(snap.Current_mA))
		field(buf[:], "mC", int64(snap.Temp_mC))
		ufield(buf[:], "soc", uint64(snap.SoC))
		ufield(buf[:], "mAh", uint64(snap.Remaining_mAh))
		print("seal=", snap.Seal.String())
		println()
	}
}
