// Package is31fl3731 drives the IS31FL3731 charlieplexed LED controller as
// wired on the Pimoroni Scroll pHAT HD (17x7, I2C address 0x74).
package is31fl3731

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
)

const (
	// DefaultAddr is the Scroll pHAT HD address.
	DefaultAddr uint16 = 0x74

	Width  = 17
	Height = 7
)

// Registers.
const (
	regBank      = 0xFD // command register: selects frame 0-7 or the function bank
	bankFunction = 0x0B

	regMode      = 0x00
	regFrame     = 0x01
	regAudioSync = 0x06
	regShutdown  = 0x0A

	modePicture = 0x00

	enableOffset = 0x00
	pwmOffset    = 0x24
	enableBytes  = 18
	pwmBytes     = 144
	chunkSize    = 32
)

// Opts configures a Dev.
type Opts struct {
	Addr uint16
	// Brightness scales every pixel, 0..1. Zero means full brightness.
	Brightness float64
}

// DefaultOpts is the Scroll pHAT HD at full brightness.
var DefaultOpts = Opts{Addr: DefaultAddr, Brightness: 1}

// Dev is a handle to an initialized controller.
type Dev struct {
	mu         sync.Mutex
	c          i2c.Dev
	brightness float64
	frame      byte // frame currently on display
	buf        [pwmBytes]byte
}

// New initializes the controller: picture mode, all LEDs enabled on both
// frames, frame 0 shown blank.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	b := opts.Brightness
	if b <= 0 || b > 1 {
		b = 1
	}
	d := &Dev{c: i2c.Dev{Bus: bus, Addr: addr}, brightness: b}
	if err := d.init(); err != nil {
		return nil, fmt.Errorf("is31fl3731: init: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("IS31FL3731{%s}", &d.c)
}

func (d *Dev) init() error {
	// Reset by cycling the software shutdown bit.
	if err := d.writeFunction(regShutdown, 0); err != nil {
		return err
	}
	time.Sleep(10 * time.Microsecond)
	if err := d.writeFunction(regShutdown, 1); err != nil {
		return err
	}
	if err := d.writeFunction(regMode, modePicture); err != nil {
		return err
	}
	if err := d.writeFunction(regAudioSync, 0); err != nil {
		return err
	}

	enable := make([]byte, 1+enableBytes)
	enable[0] = enableOffset
	for i := 1; i < len(enable); i++ {
		enable[i] = 0xFF
	}
	blank := [pwmBytes]byte{}
	for _, frame := range []byte{1, 0} {
		if err := d.selectBank(frame); err != nil {
			return err
		}
		if err := d.write(enable); err != nil {
			return err
		}
		if err := d.writePWM(blank[:]); err != nil {
			return err
		}
	}
	d.frame = 0
	return d.writeFunction(regFrame, 0)
}

// Display writes 17x7 row-major brightness values (0..1) to the hidden frame
// and then flips it onto the matrix.
func (d *Dev) Display(values []float64) error {
	if len(values) != Width*Height {
		return fmt.Errorf("is31fl3731: got %d values, want %d", len(values), Width*Height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = [pwmBytes]byte{}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			d.buf[PixelAddr(x, y)] = d.pwm(values[y*Width+x])
		}
	}

	next := byte(1)
	if d.frame == 1 {
		next = 0
	}
	if err := d.selectBank(next); err != nil {
		return err
	}
	if err := d.writePWM(d.buf[:]); err != nil {
		return err
	}
	if err := d.writeFunction(regFrame, next); err != nil {
		return err
	}
	d.frame = next
	return nil
}

// Halt puts the controller into software shutdown. The LEDs go dark but the
// frame contents are kept.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeFunction(regShutdown, 0)
}

// PixelAddr maps a matrix coordinate to its PWM register offset on the
// Scroll pHAT HD, whose LEDs are wired in two mirrored halves.
func PixelAddr(x, y int) int {
	if x > 8 {
		return (x-8)*16 + (6 - (y + 8))
	}
	return (8-x)*16 + y
}

func (d *Dev) pwm(v float64) byte {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	p := math.Round(v * d.brightness * 255)
	if p > 255 {
		return 255
	}
	return byte(p)
}

func (d *Dev) writePWM(data []byte) error {
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		w := make([]byte, 0, 1+end-off)
		w = append(w, byte(pwmOffset+off))
		w = append(w, data[off:end]...)
		if err := d.write(w); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) selectBank(bank byte) error {
	return d.write([]byte{regBank, bank})
}

func (d *Dev) writeFunction(reg, value byte) error {
	if err := d.selectBank(bankFunction); err != nil {
		return err
	}
	return d.write([]byte{reg, value})
}

// errShortWrite is returned when the bus accepts fewer bytes than sent.
var errShortWrite = errors.New("is31fl3731: short write")

func (d *Dev) write(b []byte) error {
	n, err := d.c.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return errShortWrite
	}
	return nil
}
