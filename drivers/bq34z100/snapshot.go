package bq34z100

// Snapshot collects commonly used telemetry and status.
// Zero values remain where individual reads fail.
type Snapshot struct {
	Voltage_mV     uint16
	Current_mA     int16
	AvgCurrent_mA  int16
	Temp_mC        int32
	SoC            uint8
	SoH            uint16
	Remaining_mAh  uint16
	FullCharge_mAh uint16
	CycleCount     uint16
	AvgTimeToEmpty uint16
	AvgTimeToFull  uint16
	Flags          Flags
	Status         ControlStatus
	Seal           SealState
}

func (d *Device) Snapshot() Snapshot {
	var s Snapshot
	d.SnapshotInto(&s)
	return s
}

// SnapshotInto fills out under a single lock hold.
func (d *Device) SnapshotInto(out *Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var s Snapshot
	if v, e := d.voltage(); e == nil {
		s.Voltage_mV = v
	}
	if v, e := d.current(); e == nil {
		s.Current_mA = v
	}
	if v, e := d.readS16(regAverageCurrent); e == nil {
		s.AvgCurrent_mA = v
	}
	if v, e := d.readRegister(regTemperature, 2); e == nil {
		s.Temp_mC = KelvinTenthsToMilliC(v)
	}
	if v, e := d.readRegister(regStateOfCharge, 1); e == nil {
		s.SoC = uint8(v)
	}
	if v, e := d.readRegister(regStateOfHealth, 2); e == nil {
		s.SoH = v
	}
	if v, e := d.readRegister(regRemainingCapacity, 2); e == nil {
		s.Remaining_mAh = v
	}
	if v, e := d.readRegister(regFullChargeCap, 2); e == nil {
		s.FullCharge_mAh = v
	}
	if v, e := d.readRegister(regCycleCount, 2); e == nil {
		s.CycleCount = v
	}
	if v, e := d.readRegister(regAvgTimeToEmpty, 2); e == nil {
		s.AvgTimeToEmpty = v
	}
	if v, e := d.readRegister(regAvgTimeToFull, 2); e == nil {
		s.AvgTimeToFull = v
	}
	if a, e := d.readRegister(regFlags, 2); e == nil {
		s.Flags = Flags(a)
		if b, e := d.readRegister(regFlagsB, 2); e == nil {
			s.Flags |= Flags(uint32(b) << 16)
		}
	}
	if v, e := d.controlStatus(); e == nil {
		s.Status = v
	}
	s.Seal = d.seal
	*out = s
}
