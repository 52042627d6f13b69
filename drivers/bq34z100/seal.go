package bq34z100

import "context"

// unseal writes both key words as raw control writes.
func (d *Device) unseal() error {
	if err := d.writeControl(d.cfg.UnsealKey1); err != nil {
		return err
	}
	if err := d.writeControl(d.cfg.UnsealKey2); err != nil {
		return err
	}
	d.seal = Unsealed
	return nil
}

func (d *Device) reset() error {
	_, err := d.readControl(SubReset)
	d.noteSubcommand(SubReset, err)
	return err
}

func (d *Device) sealDevice() error {
	_, err := d.readControl(SubSealed)
	d.noteSubcommand(SubSealed, err)
	return err
}

// noteSubcommand tracks subcommands that change the access level.
func (d *Device) noteSubcommand(sub Subcommand, err error) {
	if err != nil {
		return
	}
	switch sub {
	case SubReset, SubSealed:
		d.seal = Sealed
	}
}

// Unseal sends the two unseal keys. The gauge reseals itself on reset, so
// every flash sequence in this package unseals first.
func (d *Device) Unseal(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.unseal()
}

// Seal returns the gauge to sealed mode.
func (d *Device) Seal(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.sealDevice()
}

// Reset issues RESET and waits the settle interval.
func (d *Device) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reset(); err != nil {
		return err
	}
	return d.sleep(ctx, d.cfg.Settle)
}

// Ready unseals, enables Impedance Track learning and seals again.
func (d *Device) Ready(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.unseal(); err != nil {
		return err
	}
	if _, err := d.readControl(SubITEnable); err != nil {
		return err
	}
	return d.sealDevice()
}
