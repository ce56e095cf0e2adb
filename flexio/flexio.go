// Package flexio models the NXP FlexIO timer block: typed timer channel
// configuration, the packed TIMCTL/TIMCFG/TIMCMP register encoding, and
// the bus interface core code writes registers through.
//
// The packing lives entirely in ControlWord/ConfigWord so that everything
// above this package works with named fields instead of shifted masks.
package flexio

// Geometry of one FlexIO instance (FLEXIO0 on the MCX N94x).
const (
	TimerCount = 8  // timer channels
	PinCount   = 32 // FXIO_Dn data pins
)

// TimerChannel identifies one timer channel, 0..TimerCount-1.
type TimerChannel uint8

// OutputPin identifies one FXIO_Dn data pin, 0..PinCount-1.
type OutputPin uint8

// Level is a digital pin level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// TimerMode is the TIMOD field: what the timer counts and how its output
// toggles.
type TimerMode uint8

const (
	TimerModeDisabled     TimerMode = 0
	TimerModeDual8BitBaud TimerMode = 1
	TimerModeDual8BitPWM  TimerMode = 2
	TimerModeSingle16Bit  TimerMode = 3
)

// PinPolarity is the PINPOL field. An active-low pin drives the inverted
// timer output, so a disabled (idle) timer rests the pin high.
type PinPolarity uint8

const (
	PinActiveHigh PinPolarity = 0
	PinActiveLow  PinPolarity = 1
)

// PinConfig is the PINCFG field: how the timer drives its pin.
type PinConfig uint8

const (
	PinConfigOutputDisabled PinConfig = 0
	PinConfigOpenDrain      PinConfig = 1
	PinConfigBidirectional  PinConfig = 2
	PinConfigOutput         PinConfig = 3
)

// TriggerSource is the TRGSRC field.
type TriggerSource uint8

const (
	TriggerSourceExternal TriggerSource = 0
	TriggerSourceInternal TriggerSource = 1
)

// TriggerPolarity is the TRGPOL field.
type TriggerPolarity uint8

const (
	TriggerPolarityActiveHigh TriggerPolarity = 0
	TriggerPolarityActiveLow  TriggerPolarity = 1
)

// TimerOutput is the TIMOUT field: the output level when the timer is
// enabled and whether timer reset affects it.
type TimerOutput uint8

const (
	TimerOutputOneNotAffectedByReset  TimerOutput = 0
	TimerOutputZeroNotAffectedByReset TimerOutput = 1
	TimerOutputOneAffectedByReset     TimerOutput = 2
	TimerOutputZeroAffectedByReset    TimerOutput = 3
)

// TimerDecrement is the TIMDEC field: the decrement source, which also
// selects the shift clock the timer presents to shifters.
type TimerDecrement uint8

const (
	TimerDecFlexIOClock  TimerDecrement = 0 // FlexIO clock, shift clock is timer output
	TimerDecTriggerInput TimerDecrement = 1 // trigger input, shift clock is timer output
	TimerDecPinInput     TimerDecrement = 2 // pin input, shift clock is pin input
	TimerDecTriggerShift TimerDecrement = 3 // trigger input, shift clock is trigger input
)

// TimerReset is the TIMRST field: the condition that resets the counter.
type TimerReset uint8

const (
	TimerResetNever                TimerReset = 0
	TimerResetOnPinEqualOutput     TimerReset = 2
	TimerResetOnTriggerEqualOutput TimerReset = 3
	TimerResetOnPinRisingEdge      TimerReset = 4
	TimerResetOnTriggerRisingEdge  TimerReset = 6
	TimerResetOnTriggerBothEdge    TimerReset = 7
)

// TimerDisable is the TIMDIS field: the condition that disables the timer.
type TimerDisable uint8

const (
	TimerDisableNever                TimerDisable = 0
	TimerDisableOnPrevDisable        TimerDisable = 1
	TimerDisableOnCompare            TimerDisable = 2
	TimerDisableOnCompareTriggerLow  TimerDisable = 3
	TimerDisableOnPinBothEdge        TimerDisable = 4
	TimerDisableOnTriggerFallingEdge TimerDisable = 6
)

// TimerEnable is the TIMENA field: the condition that enables the timer.
type TimerEnable uint8

const (
	TimerEnabledAlways                    TimerEnable = 0
	TimerEnableOnPrevEnable               TimerEnable = 1
	TimerEnableOnTriggerHigh              TimerEnable = 2
	TimerEnableOnTriggerHighPinHigh       TimerEnable = 3
	TimerEnableOnPinRisingEdge            TimerEnable = 4
	TimerEnableOnPinRisingEdgeTriggerHigh TimerEnable = 5
	TimerEnableOnTriggerRisingEdge        TimerEnable = 6
	TimerEnableOnTriggerBothEdge          TimerEnable = 7
)

// TimerStart is the TSTART field.
type TimerStart uint8

const (
	TimerStartBitDisabled TimerStart = 0
	TimerStartBitEnabled  TimerStart = 1
)

// TimerStop is the TSTOP field.
type TimerStop uint8

const (
	TimerStopBitDisabled         TimerStop = 0
	TimerStopBitOnCompare        TimerStop = 1
	TimerStopBitOnDisable        TimerStop = 2
	TimerStopBitOnCompareDisable TimerStop = 3
)

// Trigger select encodings for internal trigger sources.

// ShifterStatusTrigger selects shifter n's status flag as the trigger.
func ShifterStatusTrigger(n uint8) uint8 { return n<<2 | 1 }

// PinInputTrigger selects pin n input as the trigger.
func PinInputTrigger(n uint8) uint8 { return n << 1 }

// TimerTrigger selects timer n's output as the trigger.
func TimerTrigger(n uint8) uint8 { return n<<2 | 3 }

// TimerConfig describes one timer channel, one field per hardware
// sub-field of TIMCTL and TIMCFG plus the TIMCMP compare value.
type TimerConfig struct {
	TriggerSelect   uint8
	TriggerPolarity TriggerPolarity
	TriggerSource   TriggerSource
	PinConfig       PinConfig
	PinSelect       OutputPin
	PinPolarity     PinPolarity
	Mode            TimerMode
	Output          TimerOutput
	Decrement       TimerDecrement
	Reset           TimerReset
	Disable         TimerDisable
	Enable          TimerEnable
	Start           TimerStart
	Stop            TimerStop
	Compare         uint16
}

// ControlWord returns the packed TIMCTL register value.
//
//	[29:24] TRGSEL  [23] TRGPOL  [22] TRGSRC  [17:16] PINCFG
//	[12:8]  PINSEL  [7] PINPOL   [2:0] TIMOD
func (c TimerConfig) ControlWord() uint32 {
	return uint32(c.TriggerSelect&0x3F)<<24 |
		uint32(c.TriggerPolarity&1)<<23 |
		uint32(c.TriggerSource&1)<<22 |
		uint32(c.PinConfig&0x3)<<16 |
		uint32(c.PinSelect&0x1F)<<8 |
		uint32(c.PinPolarity&1)<<7 |
		uint32(c.Mode&0x7)
}

// ConfigWord returns the packed TIMCFG register value.
//
//	[25:24] TIMOUT  [22:20] TIMDEC  [18:16] TIMRST
//	[14:12] TIMDIS  [10:8] TIMENA   [5:4] TSTOP  [1] TSTART
func (c TimerConfig) ConfigWord() uint32 {
	return uint32(c.Output&0x3)<<24 |
		uint32(c.Decrement&0x7)<<20 |
		uint32(c.Reset&0x7)<<16 |
		uint32(c.Disable&0x7)<<12 |
		uint32(c.Enable&0x7)<<8 |
		uint32(c.Stop&0x3)<<4 |
		uint32(c.Start&1)<<1
}

// PackDualPWMCompare packs the two dual 8-bit PWM phase counts into a
// TIMCMP value: high-phase count in the low byte, low-phase count in the
// high byte. The hardware runs each phase for count+1 FlexIO clock ticks.
// Both counts must fit in 8 bits.
func PackDualPWMCompare(highTicks, lowTicks uint32) uint16 {
	return uint16(lowTicks<<8 | highTicks&0xFF)
}

// TIMCTL field extraction, used by the simulated block to interpret what
// was written.

func controlMode(ctl uint32) TimerMode { return TimerMode(ctl & 0x7) }

func controlPin(ctl uint32) OutputPin { return OutputPin(ctl >> 8 & 0x1F) }

func controlPinPolarity(ctl uint32) PinPolarity { return PinPolarity(ctl >> 7 & 1) }

func controlPinConfig(ctl uint32) PinConfig { return PinConfig(ctl >> 16 & 0x3) }
