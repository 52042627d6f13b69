package bq34z100

// Register access primitives. Callers hold d.mu.

// readRegister reads a 1- or 2-byte data register. The first byte received
// lands in the least significant position: byte i contributes byte<<(8*i).
func (d *Device) readRegister(reg byte, length int) (uint16, error) {
	if length != 1 && length != 2 {
		return 0, ErrInvalidLength
	}
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:length]); err != nil {
		return 0, &BusError{Op: "read", Reg: reg, Err: err}
	}
	var v uint16
	for i := 0; i < length; i++ {
		v |= uint16(d.r[i]) << (8 * i)
	}
	return v, nil
}

func (d *Device) readS16(reg byte) (int16, error) {
	u, err := d.readRegister(reg, 2)
	return int16(u), err
}

// writeReg writes one byte to a register.
func (d *Device) writeReg(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	if err := d.i2c.Tx(d.addr, d.w[:2], nil); err != nil {
		return &BusError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}

// writeControl writes a raw word to CONTROL() without reading a response.
func (d *Device) writeControl(word uint16) error {
	d.w[0] = regControl
	d.w[1] = byte(word)      // low
	d.w[2] = byte(word >> 8) // high
	if err := d.i2c.Tx(d.addr, d.w[:3], nil); err != nil {
		return &BusError{Op: "control", Reg: regControl, Err: err}
	}
	return nil
}

// readControl issues a subcommand and reads its 2-byte response.
func (d *Device) readControl(sub Subcommand) (uint16, error) {
	if err := d.writeControl(uint16(sub)); err != nil {
		return 0, err
	}
	return d.readRegister(regControl, 2)
}

// ReadRegister reads a 1- or 2-byte standard command register.
func (d *Device) ReadRegister(reg byte, length int) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(reg, length)
}

// WriteRegister writes one byte to a register.
func (d *Device) WriteRegister(reg, val byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeReg(reg, val)
}

// Control issues a CONTROL() subcommand and returns the response word.
func (d *Device) Control(sub Subcommand) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readControl(sub)
	d.noteSubcommand(sub, err)
	return v, err
}
