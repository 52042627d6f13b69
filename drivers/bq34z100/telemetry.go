package bq34z100

// Standard command getters. Each takes the device lock for one read.

func (d *Device) voltage() (uint16, error) { return d.readRegister(regVoltage, 2) }
func (d *Device) current() (int16, error)  { return d.readS16(regCurrent) }

func (d *Device) lockedU16(reg byte) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(reg, 2)
}

func (d *Device) lockedS16(reg byte) (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readS16(reg)
}

func (d *Device) lockedU8(reg byte) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readRegister(reg, 1)
	return uint8(v), err
}

// Charge state

func (d *Device) StateOfCharge() (uint8, error)       { return d.lockedU8(regStateOfCharge) }
func (d *Device) MaxError() (uint8, error)            { return d.lockedU8(regMaxError) }
func (d *Device) RemainingCapacity() (uint16, error)  { return d.lockedU16(regRemainingCapacity) }
func (d *Device) FullChargeCapacity() (uint16, error) { return d.lockedU16(regFullChargeCap) }
func (d *Device) PassedCharge() (int16, error)        { return d.lockedS16(regPassedCharge) }
func (d *Device) StateOfHealth() (uint16, error)      { return d.lockedU16(regStateOfHealth) }
func (d *Device) CycleCount() (uint16, error)         { return d.lockedU16(regCycleCount) }
func (d *Device) DesignCapacity() (uint16, error)     { return d.lockedU16(regDesignCapacity) }

// Voltage_mV returns the pack voltage after the divider.
func (d *Device) Voltage_mV() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voltage()
}

// Current_mA returns the instantaneous current; negative while discharging.
func (d *Device) Current_mA() (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current()
}

func (d *Device) AverageCurrent_mA() (int16, error) { return d.lockedS16(regAverageCurrent) }
func (d *Device) ChargeVoltage_mV() (uint16, error) { return d.lockedU16(regChargeVoltage) }
func (d *Device) ChargeCurrent_mA() (uint16, error) { return d.lockedU16(regChargeCurrent) }

// Energy and power

func (d *Device) AvailableEnergy_10mWh() (uint16, error) { return d.lockedU16(regAvailableEnergy) }
func (d *Device) AveragePower_10mW() (int16, error)      { return d.lockedS16(regAveragePower) }

// Temperatures (0.1 K)

func (d *Device) Temperature_dK() (uint16, error)         { return d.lockedU16(regTemperature) }
func (d *Device) InternalTemperature_dK() (uint16, error) { return d.lockedU16(regInternalTemp) }

// KelvinTenthsToMilliC converts a 0.1 K reading to milli-degrees Celsius.
func KelvinTenthsToMilliC(dK uint16) int32 { return int32(dK)*100 - 273150 }

// Time estimates (minutes; 65535 means not available)

func (d *Device) AverageTimeToEmpty() (uint16, error) { return d.lockedU16(regAvgTimeToEmpty) }
func (d *Device) AverageTimeToFull() (uint16, error)  { return d.lockedU16(regAvgTimeToFull) }
func (d *Device) DOD0Time() (uint16, error)           { return d.lockedU16(regDOD0Time) }

// Identity and flags

func (d *Device) SerialNumber() (uint16, error) { return d.lockedU16(regSerialNumber) }

// Flags returns the FLAGS (low) and FLAGSB (high) words.
func (d *Device) Flags() (Flags, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.readRegister(regFlags, 2)
	if err != nil {
		return 0, err
	}
	b, err := d.readRegister(regFlagsB, 2)
	if err != nil {
		return 0, err
	}
	return Flags(uint32(b)<<16 | uint32(a)), nil
}

// PackConfiguration returns the active Pack Configuration word.
func (d *Device) PackConfiguration() (PackConfig, error) {
	v, err := d.lockedU16(regPackConfiguration)
	return PackConfig(v), err
}

// Flags packs FLAGS in the low word and FLAGSB in the high word.
type Flags uint32

const (
	FlagDSG      Flags = 1 << 0  // discharging
	FlagSOCF     Flags = 1 << 1  // state of charge final threshold
	FlagSOC1     Flags = 1 << 2  // state of charge threshold 1
	FlagCF       Flags = 1 << 4  // condition flag, learning cycle requested
	FlagOCVTAKEN Flags = 1 << 7  // OCV measured in relax
	FlagCHG      Flags = 1 << 8  // fast charging allowed
	FlagFC       Flags = 1 << 9  // full charge
	FlagXCHG     Flags = 1 << 10 // charge suspended
	FlagCHGINH   Flags = 1 << 11 // charge inhibited
	FlagBATLOW   Flags = 1 << 12 // battery low
	FlagBATHI    Flags = 1 << 13 // battery high
	FlagOTD      Flags = 1 << 14 // over-temperature in discharge
	FlagOTC      Flags = 1 << 15 // over-temperature in charge

	FlagLIFE Flags = 1 << (16 + 13) // lifetime data written
	FlagSOH  Flags = 1 << (16 + 15) // state of health valid
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// PackConfig is the Pack Configuration word of data-flash subclass 64.
type PackConfig uint16

const (
	PackTEMPS   PackConfig = 1 << 0  // external thermistor
	PackVOLTSEL PackConfig = 1 << 3  // external voltage divider
	PackRSNS0   PackConfig = 1 << 8  // sense resistor selection, low bit
	PackRSNS1   PackConfig = 1 << 9  // sense resistor selection, high bit
	PackIWAKE   PackConfig = 1 << 10 // wake current threshold
	PackCALEN   PackConfig = 1 << 14 // calibration mode allowed
	PackRESCAP  PackConfig = 1 << 15 // reserve capacity at no load
)

func (p PackConfig) Has(flag PackConfig) bool { return p&flag != 0 }
