package is31fl3731

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func newRecorded(t *testing.T, opts *Opts) (*Dev, *i2ctest.Record) {
	t.Helper()
	rec := &i2ctest.Record{}
	d, err := New(rec, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d, rec
}

func TestPixelAddr(t *testing.T) {
	tests := []struct {
		x, y int
		want int
	}{
		{0, 0, 128},
		{0, 6, 134},
		{8, 0, 0},
		{8, 6, 6},
		{9, 0, 14},
		{9, 6, 8},
		{16, 0, 126},
		{16, 6, 120},
	}
	for _, tt := range tests {
		if got := PixelAddr(tt.x, tt.y); got != tt.want {
			t.Errorf("PixelAddr(%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPixelAddr_Unique(t *testing.T) {
	seen := map[int]bool{}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			a := PixelAddr(x, y)
			if a < 0 || a >= pwmBytes {
				t.Fatalf("PixelAddr(%d,%d) = %d out of range", x, y, a)
			}
			if seen[a] {
				t.Fatalf("PixelAddr(%d,%d) = %d reused", x, y, a)
			}
			seen[a] = true
		}
	}
}

func TestNew_InitSequence(t *testing.T) {
	_, rec := newRecorded(t, nil)

	if len(rec.Ops) != 24 {
		t.Fatalf("init issued %d writes, want 24", len(rec.Ops))
	}
	for _, op := range rec.Ops {
		if op.Addr != DefaultAddr {
			t.Fatalf("write to %#x, want %#x", op.Addr, DefaultAddr)
		}
	}
	want := [][]byte{
		{regBank, bankFunction}, {regShutdown, 0},
		{regBank, bankFunction}, {regShutdown, 1},
		{regBank, bankFunction}, {regMode, modePicture},
		{regBank, bankFunction}, {regAudioSync, 0},
		{regBank, 1},
	}
	for i, w := range want {
		if !bytes.Equal(rec.Ops[i].W, w) {
			t.Errorf("op %d = % x, want % x", i, rec.Ops[i].W, w)
		}
	}
	enable := rec.Ops[9].W
	if len(enable) != 1+enableBytes || enable[0] != enableOffset || enable[1] != 0xFF || enable[18] != 0xFF {
		t.Errorf("enable write = % x", enable)
	}
	last := rec.Ops[len(rec.Ops)-2:]
	if !bytes.Equal(last[0].W, []byte{regBank, bankFunction}) || !bytes.Equal(last[1].W, []byte{regFrame, 0}) {
		t.Errorf("init should finish showing frame 0, got % x then % x", last[0].W, last[1].W)
	}
}

func TestDisplay_DoubleBuffered(t *testing.T) {
	d, rec := newRecorded(t, &Opts{Addr: 0x75, Brightness: 0.5})
	values := make([]float64, Width*Height)
	values[0] = 1          // (0,0)
	values[Width+9] = 0.4  // (9,1)
	values[6*Width+16] = 3 // (16,6), capped at 255

	rec.Ops = nil
	if err := d.Display(values); err != nil {
		t.Fatalf("Display() error = %v", err)
	}
	if len(rec.Ops) != 8 {
		t.Fatalf("Display issued %d writes, want 8", len(rec.Ops))
	}
	if rec.Ops[0].Addr != 0x75 {
		t.Errorf("addr = %#x, want 0x75", rec.Ops[0].Addr)
	}
	if !bytes.Equal(rec.Ops[0].W, []byte{regBank, 1}) {
		t.Errorf("first write = % x, want back frame 1 selected", rec.Ops[0].W)
	}

	var pwm []byte
	for i, op := range rec.Ops[1:6] {
		if op.W[0] != byte(pwmOffset+i*chunkSize) {
			t.Errorf("chunk %d starts at %#x", i, op.W[0])
		}
		if len(op.W)-1 > chunkSize {
			t.Errorf("chunk %d carries %d bytes", i, len(op.W)-1)
		}
		pwm = append(pwm, op.W[1:]...)
	}
	if len(pwm) != pwmBytes {
		t.Fatalf("wrote %d PWM bytes, want %d", len(pwm), pwmBytes)
	}
	if got := pwm[PixelAddr(0, 0)]; got != 128 {
		t.Errorf("pwm(0,0) = %d, want 128", got)
	}
	if got := pwm[PixelAddr(9, 1)]; got != 51 {
		t.Errorf("pwm(9,1) = %d, want 51", got)
	}
	if got := pwm[PixelAddr(16, 6)]; got != 255 {
		t.Errorf("pwm(16,6) = %d, want 255", got)
	}
	if !bytes.Equal(rec.Ops[7].W, []byte{regFrame, 1}) {
		t.Errorf("flip = % x, want frame 1 shown", rec.Ops[7].W)
	}

	rec.Ops = nil
	if err := d.Display(values); err != nil {
		t.Fatalf("Display() error = %v", err)
	}
	if !bytes.Equal(rec.Ops[0].W, []byte{regBank, 0}) || !bytes.Equal(rec.Ops[7].W, []byte{regFrame, 0}) {
		t.Errorf("second Display should draw into frame 0, got % x / % x", rec.Ops[0].W, rec.Ops[7].W)
	}
}

func TestDisplay_WrongLength(t *testing.T) {
	d, _ := newRecorded(t, nil)
	if err := d.Display(make([]float64, 10)); err == nil {
		t.Fatal("Display() with 10 values should fail")
	}
}

func TestHalt(t *testing.T) {
	d, rec := newRecorded(t, nil)
	rec.Ops = nil
	if err := d.Halt(); err != nil {
		t.Fatalf("Halt() error = %v", err)
	}
	if len(rec.Ops) != 2 || !bytes.Equal(rec.Ops[1].W, []byte{regShutdown, 0}) {
		t.Errorf("Halt ops = %+v", rec.Ops)
	}
}

type failingBus struct{ err error }

func (b *failingBus) String() string                   { return "failing" }
func (b *failingBus) Tx(addr uint16, w, r []byte) error { return b.err }
func (b *failingBus) SetSpeed(f physic.Frequency) error { return nil }

func TestNew_BusError(t *testing.T) {
	remoteIO := errors.New("remote I/O error")
	_, err := New(&failingBus{err: remoteIO}, nil)
	if !errors.Is(err, remoteIO) {
		t.Fatalf("New() error = %v, want wrapped remote I/O error", err)
	}
}
