package core

// ClockSource reports the FlexIO functional clock frequency. Targets
// provide it from their clock tree setup; tests use a FixedClock.
type ClockSource interface {
	ClockHz() uint32
}

// FixedClock is a ClockSource with a constant frequency in Hz.
type FixedClock uint32

func (c FixedClock) ClockHz() uint32 {
	return uint32(c)
}

// MinFrequency returns the lowest PWM frequency the dual 8-bit mode can
// produce from the given clock. The two compare fields plus the per-phase
// overhead bound the period at 512 ticks.
func MinFrequency(clockHz uint32) uint32 {
	return clockHz / 512
}

// MaxFrequency returns the highest PWM frequency the dual 8-bit mode can
// produce from the given clock. Each phase runs for at least one tick.
func MaxFrequency(clockHz uint32) uint32 {
	return clockHz / 2
}
