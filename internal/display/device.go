package display

import (
	"fmt"

	"go.uber.org/zap"
)

// Device shows frames.
type Device interface {
	Show(f *Frame) error
	Close() error
}

// Matrix is a 17x7 LED controller fed row-major brightness values, such as
// *is31fl3731.Dev.
type Matrix interface {
	Display(values []float64) error
	Halt() error
}

// MatrixDevice adapts a Matrix to Device, optionally turning every frame
// upside down.
type MatrixDevice struct {
	m      Matrix
	rotate bool
}

// NewMatrixDevice returns a Device backed by m.
func NewMatrixDevice(m Matrix, rotate180 bool) *MatrixDevice {
	return &MatrixDevice{m: m, rotate: rotate180}
}

func (d *MatrixDevice) Show(f *Frame) error {
	if d.rotate {
		f = f.Rotated180()
	}
	if err := d.m.Display(f.Values()); err != nil {
		return fmt.Errorf("display frame: %w", err)
	}
	return nil
}

// Close blanks the matrix and shuts the controller down.
func (d *MatrixDevice) Close() error {
	blank := make([]float64, Width*Height)
	if err := d.m.Display(blank); err != nil {
		return fmt.Errorf("blank display: %w", err)
	}
	return d.m.Halt()
}

// ConsoleDevice logs frames as text art, for running without the hardware.
// Frames that differ only in the pulse strip are not logged.
type ConsoleDevice struct {
	logger *zap.Logger
	last   *Frame
	shown  int
}

// NewConsoleDevice returns a ConsoleDevice writing to logger.
func NewConsoleDevice(logger *zap.Logger) *ConsoleDevice {
	return &ConsoleDevice{logger: logger}
}

func (d *ConsoleDevice) Show(f *Frame) error {
	if ContentEqual(d.last, f) {
		return nil
	}
	d.last = f.Clone()
	d.shown++
	d.logger.Info("display frame", zap.Int("frame", d.shown), zap.String("matrix", "\n"+f.String()))
	return nil
}

func (d *ConsoleDevice) Close() error {
	d.logger.Info("display cleared")
	return nil
}
