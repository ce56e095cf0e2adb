package flexio

import "errors"

var (
	// ErrChannelRange reports a timer channel outside 0..TimerCount-1.
	ErrChannelRange = errors.New("flexio: timer channel out of range")

	// ErrPinRange reports a data pin outside 0..PinCount-1.
	ErrPinRange = errors.New("flexio: pin out of range")
)

// Bus is the register access interface for one FlexIO instance. Core code
// configures timer channels exclusively through it; implementations are
// either a memory-mapped register block on real silicon or the in-memory
// Sim block.
type Bus interface {
	// Enable sets or clears the FLEXEN bit in the CTRL register.
	Enable(on bool) error

	// WriteTimerConfig writes the packed TIMCFG, TIMCMP and TIMCTL
	// registers of the channel, in that order. TIMCTL goes last because
	// a non-disabled TIMOD starts the timer.
	WriteTimerConfig(ch TimerChannel, cfg TimerConfig) error

	// ClearTimerCompare zeroes the channel's TIMCMP register.
	ClearTimerCompare(ch TimerChannel) error
}

// PinReader is implemented by register blocks that expose the PIN status
// register. Not every FlexIO revision has it, so callers discover the
// capability with a type assertion on the Bus.
type PinReader interface {
	// PinLevel returns the sampled level of one FXIO_Dn pin.
	PinLevel(pin OutputPin) Level
}
