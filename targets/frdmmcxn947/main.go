//go:build mcxn947

// Center-aligned PWM demo for the FRDM-MCXN947: one FlexIO timer
// channel drives FXIO_D0 at a fixed frequency and duty. Board bring-up
// (clock tree, pin mux) is assumed done by the boot code before main
// runs, with the FlexIO functional clock attached to FRO_HF/4.
package main

import (
	"flexpwm/core"
	"flexpwm/flexio"
)

// Demo configuration, fixed at compile time like the vendor note.
const (
	demoClockHz   = 12000000 // FRO_HF / 4
	demoChannel   = 0
	demoPin       = 0 // FXIO_D0
	demoFrequency = 100000
	demoDuty      = 50
)

func main() {
	// TODO: serve the console on LP_FLEXCOMM4 once a UART driver
	// exists; until then the command set is only reachable from the
	// simulator target.
	core.InitCoreCommands()
	core.RegisterConstant("MCU", "mcxn947")
	core.RegisterConstant("CLOCK_FREQ", uint32(demoClockHz))

	bus := MemBus{}
	pwm := core.NewPWM(bus, core.FixedClock(demoClockHz))
	core.InitPWMCommands(pwm)

	_ = bus.Enable(true)

	if err := pwm.Configure(demoChannel, demoPin, demoFrequency, demoDuty); err != nil {
		// Nowhere to report the error on this board, park the pin low
		_ = pwm.SetIdle(demoChannel, demoPin, false)
	}

	for {
	}
}
