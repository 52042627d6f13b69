package bq34z100

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ctx() context.Context { return context.Background() }

func TestChecksum(t *testing.T) {
	var b FlashBlock
	if got := Checksum(b); got != 0xff {
		t.Fatalf("zero block: 0x%02x", got)
	}
	b[0] = 1
	if got := b.Checksum(); got != 0xfe {
		t.Fatalf("one: 0x%02x", got)
	}
	for i := range b {
		b[i] = 8 // sum 256
	}
	if got := b.Checksum(); got != 0xff {
		t.Fatalf("wrapped sum: 0x%02x", got)
	}

	for i := range b {
		b[i] = byte(i*37 + 11)
	}
	var sum byte
	for _, x := range b {
		sum += x
	}
	if sum+b.Checksum() != 0xff {
		t.Fatal("sum + checksum must be 0xff mod 256")
	}
}

func TestFlashBlockWords(t *testing.T) {
	var b FlashBlock
	b.PutUint16(11, 2000)
	if b[11] != 0x07 || b[12] != 0xd0 {
		t.Fatalf("big-endian: % x", b[11:13])
	}
	if b.Uint16(11) != 2000 {
		t.Fatal("Uint16")
	}
	b.PutUint32(4, 0x94_8a_9c_08)
	if b.Uint32(4) != 0x948a9c08 || b[4] != 0x94 || b[7] != 0x08 {
		t.Fatalf("Uint32: % x", b[4:8])
	}
}

func TestReadFlashBlockSealed(t *testing.T) {
	d, g, _ := newTestDevice()
	if _, err := d.ReadFlashBlock(subclassData, 0); !errors.Is(err, ErrSealed) {
		t.Fatalf("err = %v, want ErrSealed", err)
	}
	if len(g.writes) != 0 {
		t.Fatalf("bus touched while sealed: %v", g.writes)
	}
}

func TestReadFlashBlockSelectsByOffset(t *testing.T) {
	d, g, _ := newTestDevice()
	var want FlashBlock
	want[3] = 0xaa
	g.flash[flashKey{subclassData, 1}] = want

	if err := d.Unseal(ctx()); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadFlashBlock(subclassData, 40)
	if err != nil {
		t.Fatalf("ReadFlashBlock: %v", err)
	}
	if got != want {
		t.Fatalf("block mismatch: % x", got[:8])
	}
	sel := g.writes[len(g.writes)-3:]
	if diff := cmp.Diff([][]byte{{0x61, 0x00}, {0x3e, 48}, {0x3f, 1}}, sel); diff != "" {
		t.Fatalf("selection (-want +got):\n%s", diff)
	}
}

func TestWriteFlashBlockCommits(t *testing.T) {
	d, g, _ := newTestDevice()
	var blk FlashBlock
	for i := range blk {
		blk[i] = byte(i)
	}
	if err := d.Unseal(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteFlashBlock(subclassCurrent, 0, blk); err != nil {
		t.Fatalf("WriteFlashBlock: %v", err)
	}
	if g.commits != 1 || g.rejected != 0 {
		t.Fatalf("commits=%d rejected=%d", g.commits, g.rejected)
	}
	if g.flash[flashKey{subclassCurrent, 0}] != blk {
		t.Fatal("block not stored")
	}
	last := g.writes[len(g.writes)-1]
	if diff := cmp.Diff([]byte{regBlockChecksum, blk.Checksum()}, last); diff != "" {
		t.Fatalf("checksum write (-want +got):\n%s", diff)
	}
	data := g.writes[len(g.writes)-2]
	if len(data) != BlockSize+1 || data[0] != regBlockData {
		t.Fatalf("data write % x", data)
	}
}
