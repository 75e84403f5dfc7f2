//go:build !linux || !(amd64 || arm64)

package v4l2

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("v4l2: capture requires linux on amd64 or arm64")

// Device is unavailable on this platform.
type Device struct{}

// Open always fails on this platform.
func Open(path string) (*Device, error) { return nil, errUnsupported }

func (d *Device) QueryCapability() (Capability, error)   { return Capability{}, errUnsupported }
func (d *Device) CropCapability() (Rect, error)          { return Rect{}, errUnsupported }
func (d *Device) SetCrop(Rect) error                     { return errUnsupported }
func (d *Device) Format() (PixFormat, error)             { return PixFormat{}, errUnsupported }
func (d *Device) SetFormat(PixFormat) (PixFormat, error) { return PixFormat{}, errUnsupported }
func (d *Device) RequestBuffers(uint32) (uint32, error)  { return 0, errUnsupported }
func (d *Device) QueryBuffer(uint32) (BufferInfo, error) { return BufferInfo{}, errUnsupported }
func (d *Device) Map(uint32, uint32) ([]byte, error)     { return nil, errUnsupported }
func (d *Device) Unmap([]byte) error                     { return errUnsupported }
func (d *Device) Queue(uint32) error                     { return errUnsupported }
func (d *Device) Dequeue() (BufferInfo, error)           { return BufferInfo{}, errUnsupported }
func (d *Device) StreamOn() error                        { return errUnsupported }
func (d *Device) StreamOff() error                       { return errUnsupported }
func (d *Device) Wait(time.Duration) (bool, error)       { return false, errUnsupported }
func (d *Device) Close() error                           { return errUnsupported }
