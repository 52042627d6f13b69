package bq34z100

import "context"

func (d *Device) controlStatus() (ControlStatus, error) {
	v, err := d.readControl(SubControlStatus)
	return ControlStatus(v), err
}

func (d *Device) lockedControl(sub Subcommand) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readControl(sub)
}

// ControlStatus reads CONTROL_STATUS.
func (d *Device) ControlStatus() (ControlStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controlStatus()
}

func (d *Device) DeviceType() (uint16, error)         { return d.lockedControl(SubDeviceType) }
func (d *Device) FWVersion() (uint16, error)          { return d.lockedControl(SubFWVersion) }
func (d *Device) HWVersion() (uint16, error)          { return d.lockedControl(SubHWVersion) }
func (d *Device) ResetData() (uint16, error)          { return d.lockedControl(SubResetData) }
func (d *Device) PrevMacWrite() (uint16, error)       { return d.lockedControl(SubPrevMacWrite) }
func (d *Device) ChemID() (uint16, error)             { return d.lockedControl(SubChemID) }
func (d *Device) DFVersion() (uint16, error)          { return d.lockedControl(SubDFVersion) }
func (d *Device) StaticChemChecksum() (uint16, error) { return d.lockedControl(SubStaticChemChksum) }

// SetFullSleep arms FULLSLEEP; the gauge enters it on the next sleep entry.
func (d *Device) SetFullSleep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.lockedControl(SubSetFullSleep)
	return err
}

// Identity is the firmware identification block read by status tooling.
type Identity struct {
	DeviceType uint16
	FWVersion  uint16
	HWVersion  uint16
	ChemID     uint16
	DFVersion  uint16
}

// Identify reads the identification subcommands in one locked sequence.
func (d *Device) Identify() (Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var id Identity
	for _, f := range []struct {
		sub Subcommand
		dst *uint16
	}{
		{SubDeviceType, &id.DeviceType},
		{SubFWVersion, &id.FWVersion},
		{SubHWVersion, &id.HWVersion},
		{SubChemID, &id.ChemID},
		{SubDFVersion, &id.DFVersion},
	} {
		v, err := d.readControl(f.sub)
		if err != nil {
			return id, err
		}
		*f.dst = v
	}
	return id, nil
}
