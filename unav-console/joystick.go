package main

import (
	"flag"
	"fmt"

	"github.com/splace/joysticks"
)

type JoystickAxis struct {
	AxisNumber int

	// Positions between these values are bound to zero
	ZeroFrom, ZeroTo float64

	InvertX, InvertY bool

	// If true, scale the value range to adjust for zeroFrom/zeroTo and make the entire value range -1..1 available
	ScaleZeroFromTo bool
}

func (a *JoystickAxis) RegisterFlags(prefix string, desc string) {
	flag.IntVar(&a.AxisNumber, prefix, a.AxisNumber, "Index for joystick axis for "+desc)
	flag.BoolVar(&a.InvertX, prefix+"-invert-x", a.InvertX, "Invert X direction of "+desc)
	flag.BoolVar(&a.InvertY, prefix+"-invert-y", a.InvertY, "Invert Y direction of "+desc)
	flag.Float64Var(&a.ZeroFrom, prefix+"-zero-from", a.ZeroFrom, "Start of the zero interval of "+desc)
	flag.Float64Var(&a.ZeroTo, prefix+"-zero-to", a.ZeroTo, "End of the zero interval of "+desc)
	flag.BoolVar(&a.ScaleZeroFromTo, prefix+"-scale-zero", a.ScaleZeroFromTo, "Can be used to disable the value range adjustment after filtering based on zeroFrom/zeroTo for "+desc)
}

func (a *JoystickAxis) Notify(js *joysticks.HID, hook func(x, y float64)) error {
	if !js.HatExists(uint8(a.AxisNumber)) {
		return fmt.Errorf("Joystick axis (%v) does not exist on device", a.AxisNumber)
	}
	moved := js.OnMove(uint8(a.AxisNumber))
	go func() {
		for event := range moved {
			coords, ok := event.(joysticks.CoordsEvent)
			if !ok {
				continue
			}
			hook(a.convertCoords(float64(coords.X), float64(coords.Y)))
		}
	}()
	return nil
}

func (a *JoystickAxis) convertCoords(x, y float64) (float64, float64) {
	if a.InvertX {
		x = -x
	}
	if a.InvertY {
		y = -y
	}
	return a.convert(x), a.convert(y)
}

func (a *JoystickAxis) convert(val float64) float64 {
	if val >= a.ZeroFrom && val <= a.ZeroTo {
		val = 0
	} else if a.ScaleZeroFromTo {
		// Scale the value range from [-1..zeroFrom] and [zeroTo..1] to [-1..0] and [0..1]
		if val > 0 {
			val = (val - a.ZeroTo) / (1 - a.ZeroTo)
		} else if val < 0 {
			val = (a.ZeroFrom - val) / (-1 - a.ZeroFrom)
		}
	}
	// Devices sometimes report slightly more than the full deflection
	if val > 1 {
		val = 1
	} else if val < -1 {
		val = -1
	}
	return val
}
