package bq34z100

const (
	// 7-bit I2C address.
	AddressDefault = 0x55

	// --- Standard commands (data registers, little-endian words) ---
	regControl           = 0x00 // R/W, subcommand word + response
	regStateOfCharge     = 0x02 // R, 1 byte, %
	regMaxError          = 0x03 // R, 1 byte, %
	regRemainingCapacity = 0x04 // R, mAh
	regFullChargeCap     = 0x06 // R, mAh
	regVoltage           = 0x08 // R, mV
	regAverageCurrent    = 0x0a // R, mA (signed)
	regTemperature       = 0x0c // R, 0.1 K
	regFlags             = 0x0e // R
	regCurrent           = 0x10 // R, mA (signed)
	regFlagsB            = 0x12 // R
	regAvgTimeToEmpty    = 0x18 // R, min
	regAvgTimeToFull     = 0x1a // R, min
	regPassedCharge      = 0x1c // R, mAh (signed)
	regDOD0Time          = 0x1e // R, min
	regAvailableEnergy   = 0x24 // R, 10 mWh
	regAveragePower      = 0x26 // R, 10 mW
	regSerialNumber      = 0x28 // R
	regInternalTemp      = 0x2a // R, 0.1 K
	regCycleCount        = 0x2c // R
	regStateOfHealth     = 0x2e // R, % in low byte, status in high byte
	regChargeVoltage     = 0x30 // R, mV
	regChargeCurrent     = 0x32 // R, mA
	regPackConfiguration = 0x3a // R
	regDesignCapacity    = 0x3c // R, mAh

	// --- Data-flash access ---
	regDataFlashClass = 0x3e // W, subclass id
	regDataFlashBlock = 0x3f // W, offset/32
	regBlockData      = 0x40 // R/W, 0x40..0x5f
	regBlockChecksum  = 0x60 // W, commit
	regBlockControl   = 0x61 // W, 0x00 selects data flash

	blockControlDataFlash = 0x00
)

// BlockSize is the size of one data-flash block.
const BlockSize = 32

// Subcommand is a CONTROL() subcommand code, sent LSB first.
type Subcommand uint16

const (
	SubControlStatus    Subcommand = 0x0000
	SubDeviceType       Subcommand = 0x0001
	SubFWVersion        Subcommand = 0x0002
	SubHWVersion        Subcommand = 0x0003
	SubResetData        Subcommand = 0x0005
	SubPrevMacWrite     Subcommand = 0x0007
	SubChemID           Subcommand = 0x0008
	SubBoardOffset      Subcommand = 0x0009
	SubCCOffset         Subcommand = 0x000a
	SubCCOffsetSave     Subcommand = 0x000b
	SubDFVersion        Subcommand = 0x000c
	SubSetFullSleep     Subcommand = 0x0010
	SubStaticChemChksum Subcommand = 0x0017
	SubSealed           Subcommand = 0x0020
	SubITEnable         Subcommand = 0x0021
	SubCalEnable        Subcommand = 0x002d
	SubReset            Subcommand = 0x0041
	SubExitCal          Subcommand = 0x0080
	SubEnterCal         Subcommand = 0x0081
	SubOffsetCal        Subcommand = 0x0082
)

// Default unseal keys, written as two raw control words.
const (
	DefaultUnsealKey1 uint16 = 0x0414
	DefaultUnsealKey2 uint16 = 0x3672
)

// ControlStatus is the CONTROL_STATUS response word.
type ControlStatus uint16

const (
	StatusQEN       ControlStatus = 1 << 0  // impedance track enabled
	StatusVOK       ControlStatus = 1 << 1  // voltages ok for Qmax update
	StatusRUPDis    ControlStatus = 1 << 2  // Ra updates disabled
	StatusLDMD      ControlStatus = 1 << 3  // load mode
	StatusSleep     ControlStatus = 1 << 4  // sleep mode
	StatusFullSleep ControlStatus = 1 << 9  // full sleep enabled
	StatusBCA       ControlStatus = 1 << 10 // board calibration active
	StatusCCA       ControlStatus = 1 << 11 // coulomb counter calibration active
	StatusCALEN     ControlStatus = 1 << 12 // calibration mode enabled
	StatusSS        ControlStatus = 1 << 13 // sealed
	StatusFAS       ControlStatus = 1 << 14 // full access sealed

	// Board offset convergence is polled on CCA and BCA together.
	StatusBoardOffsetMask = StatusCCA | StatusBCA
)

// Has reports whether any bit of flag is set.
func (s ControlStatus) Has(flag ControlStatus) bool { return s&flag != 0 }

// Data-flash subclasses and the byte offsets touched inside them.
const (
	subclassChargeTermination = 36
	subclassData              = 48
	subclassRegisters         = 64
	subclassPowerVoltage      = 68
	subclassITCfgQmax         = 82
	subclassCalibrationData   = 104
	subclassCurrent           = 107

	// subclass 48 (Data)
	offCycleCount48   = 6
	offCCThreshold    = 8
	offDesignCapacity = 11
	offDesignEnergy   = 13
	offCellChgVT1T2   = 17
	offCellChgVT2T3   = 19
	offCellChgVT3T4   = 21

	// subclass 82 (State / Qmax)
	offQmax         = 0
	offCycleCount82 = 2

	// subclass 64 (Registers)
	offPackConfig  = 0
	offSeriesCells = 7

	// subclass 36 (Charge termination)
	offTaperCurrent     = 0
	offMinTaperCapacity = 2
	offCellTaperVoltage = 4
	offTaperWindow      = 6
	offTCASet           = 7
	offTCAClear         = 8
	offFCSet            = 9
	offFCClear          = 10

	// subclass 104 (Calibration data)
	offCCGain         = 0
	offCCDelta        = 4
	offVoltageDivider = 14

	// subclass 68 (Power)
	offFlashUpdateOKCellVolt = 0

	// subclass 107 (Current)
	offDeadband = 1
)
