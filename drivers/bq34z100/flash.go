package bq34z100

// FlashBlock is one 32-byte data-flash block, passed by value between the
// block store and its callers.
type FlashBlock [BlockSize]byte

// Checksum returns 255 - (sum of all 32 bytes mod 256).
func Checksum(data FlashBlock) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return 255 - sum
}

// Checksum of the block as it would be committed.
func (b FlashBlock) Checksum() byte { return Checksum(b) }

// Uint16 reads a big-endian word at off.
func (b FlashBlock) Uint16(off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

// PutUint16 stores a big-endian word at off.
func (b *FlashBlock) PutUint16(off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

// Uint32 reads a big-endian 32-bit word at off.
func (b FlashBlock) Uint32(off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

// PutUint32 stores a big-endian 32-bit word at off.
func (b *FlashBlock) PutUint32(off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

// selectBlock points the block-data window at subclass/offset.
func (d *Device) selectBlock(subClass, offset uint8) error {
	if d.seal != Unsealed {
		return ErrSealed
	}
	if err := d.writeReg(regBlockControl, blockControlDataFlash); err != nil {
		return err
	}
	if err := d.writeReg(regDataFlashClass, subClass); err != nil {
		return err
	}
	return d.writeReg(regDataFlashBlock, offset/BlockSize)
}

// readFlashBlock selects and reads a full block.
func (d *Device) readFlashBlock(subClass, offset uint8) (FlashBlock, error) {
	var blk FlashBlock
	if err := d.selectBlock(subClass, offset); err != nil {
		return blk, err
	}
	d.w[0] = regBlockData
	if err := d.i2c.Tx(d.addr, d.w[:1], blk[:]); err != nil {
		return blk, &BusError{Op: "read", Reg: regBlockData, Err: err}
	}
	return blk, nil
}

// writeFlashBlock selects a block, writes all 32 bytes in one transaction
// and commits with the checksum.
func (d *Device) writeFlashBlock(subClass, offset uint8, data FlashBlock) error {
	if err := d.selectBlock(subClass, offset); err != nil {
		return err
	}
	d.w[0] = regBlockData
	copy(d.w[1:], data[:])
	if err := d.i2c.Tx(d.addr, d.w[:BlockSize+1], nil); err != nil {
		return &BusError{Op: "write", Reg: regBlockData, Err: err}
	}
	return d.writeReg(regBlockChecksum, Checksum(data))
}

// writeBlockBytes writes the listed offsets of an already selected block one
// byte at a time, then commits with the checksum over the whole block.
func (d *Device) writeBlockBytes(data FlashBlock, offs []uint8) error {
	for _, off := range offs {
		if err := d.writeReg(regBlockData+off, data[off]); err != nil {
			return err
		}
	}
	return d.writeReg(regBlockChecksum, Checksum(data))
}

// ReadFlashBlock reads the data-flash block containing offset in subClass.
// The device must be unsealed.
func (d *Device) ReadFlashBlock(subClass, offset uint8) (FlashBlock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readFlashBlock(subClass, offset)
}

// WriteFlashBlock writes and commits a full block. The device must be
// unsealed; the gauge only applies the data after a reset.
func (d *Device) WriteFlashBlock(subClass, offset uint8, data FlashBlock) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeFlashBlock(subClass, offset, data)
}
