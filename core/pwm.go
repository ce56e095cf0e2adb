// Center-aligned PWM on FlexIO timer channels.
// One timer in dual 8-bit PWM mode carves each period into a high and a
// low phase; the phase tick counts live side by side in the 16-bit
// compare register.
package core

import (
	"errors"

	"flexpwm/flexio"
	"flexpwm/protocol"
)

// PWMOverheadTicks is the dual 8-bit PWM mode's fixed period overhead:
// the hardware runs each phase for its stored count plus one tick.
const PWMOverheadTicks = 2

var (
	// ErrDutyRange reports a duty cycle outside 0..100.
	ErrDutyRange = errors.New("pwm: duty cycle out of range")

	// ErrFrequencyRange reports a target frequency outside the strict
	// (clock/512, clock/2) window the dual 8-bit mode can produce.
	ErrFrequencyRange = errors.New("pwm: frequency out of range")

	// ErrCompareRange reports a frequency/duty pair whose phase tick
	// counts do not fit the two 8-bit compare fields.
	ErrCompareRange = errors.New("pwm: phase ticks exceed compare range")

	// ErrNoPinStatus reports a register block without the pin status
	// capability.
	ErrNoPinStatus = errors.New("pwm: pin status not supported")
)

// ChannelState is what a timer channel is currently configured to do.
type ChannelState uint8

const (
	ChannelDisabled ChannelState = iota // never configured
	ChannelIdleLow                      // held low, no waveform
	ChannelIdleHigh                     // held high, no waveform
	ChannelPWM                          // dual 8-bit PWM running
)

func (s ChannelState) String() string {
	switch s {
	case ChannelDisabled:
		return "disabled"
	case ChannelIdleLow:
		return "idle_low"
	case ChannelIdleHigh:
		return "idle_high"
	case ChannelPWM:
		return "pwm"
	}
	return "unknown"
}

// PWMConfig is the derived configuration for one PWM output. For duty
// values strictly inside (0,100) the tick fields describe the waveform;
// for 0 and 100 the timer stays disabled and only the polarity matters.
type PWMConfig struct {
	FrequencyHz uint32
	Duty        uint8
	PeriodTicks uint32
	HighTicks   uint32
	LowTicks    uint32
	Polarity    flexio.PinPolarity
	Mode        flexio.TimerMode
}

// PeriodTicks returns the number of FlexIO clock ticks in one PWM period,
// rounded to the nearest integer (halves round up).
func PeriodTicks(clockHz, freqHz uint32) uint32 {
	return (clockHz*2/freqHz + 1) / 2
}

// ComputeConfig derives the timer configuration for one PWM output.
// freqHz must lie strictly between clockHz/512 and clockHz/2; duty is a
// percentage in 0..100. Duty 0 and 100 are expressed through polarity
// alone: the timer is left disabled and the pin rests at the requested
// level, since neither split is representable in the compare fields.
func ComputeConfig(clockHz, freqHz uint32, duty uint8) (PWMConfig, error) {
	if freqHz <= MinFrequency(clockHz) || freqHz >= MaxFrequency(clockHz) {
		return PWMConfig{}, ErrFrequencyRange
	}
	if duty > 100 {
		return PWMConfig{}, ErrDutyRange
	}

	cfg := PWMConfig{
		FrequencyHz: freqHz,
		Duty:        duty,
		Polarity:    flexio.PinActiveHigh,
		Mode:        flexio.TimerModeDisabled,
	}

	switch duty {
	case 100:
		// Inverting the idle output holds the pin at the active level.
		cfg.Polarity = flexio.PinActiveLow
	case 0:
		cfg.Polarity = flexio.PinActiveHigh
	default:
		period := PeriodTicks(clockHz, freqHz)
		high := period * uint32(duty) / 100
		if high+PWMOverheadTicks > period {
			return PWMConfig{}, ErrCompareRange
		}
		low := period - high - PWMOverheadTicks
		if high > 0xFF || low > 0xFF {
			return PWMConfig{}, ErrCompareRange
		}
		cfg.PeriodTicks = period
		cfg.HighTicks = high
		cfg.LowTicks = low
		cfg.Mode = flexio.TimerModeDual8BitPWM
	}

	return cfg, nil
}

// pwmTimerBase returns the timer configuration shared by every PWM write:
// internal trigger from shifter 0 status, pin driven as a plain output,
// every TIMCFG condition at its never/disabled default.
func pwmTimerBase(pin flexio.OutputPin) flexio.TimerConfig {
	return flexio.TimerConfig{
		TriggerSelect:   flexio.ShifterStatusTrigger(0),
		TriggerPolarity: flexio.TriggerPolarityActiveLow,
		TriggerSource:   flexio.TriggerSourceInternal,
		PinConfig:       flexio.PinConfigOutput,
		PinSelect:       pin,
		PinPolarity:     flexio.PinActiveHigh,
		Mode:            flexio.TimerModeDisabled,
		Output:          flexio.TimerOutputOneNotAffectedByReset,
		Decrement:       flexio.TimerDecFlexIOClock,
		Reset:           flexio.TimerResetNever,
		Disable:         flexio.TimerDisableNever,
		Enable:          flexio.TimerEnabledAlways,
		Start:           flexio.TimerStartBitDisabled,
		Stop:            flexio.TimerStopBitDisabled,
	}
}

// timerConfig translates a derived PWM configuration into the register
// level timer configuration for one output pin. This is the only place
// the calculator's tick counts meet the packed compare layout.
func timerConfig(pin flexio.OutputPin, cfg PWMConfig) flexio.TimerConfig {
	tc := pwmTimerBase(pin)
	tc.PinPolarity = cfg.Polarity
	tc.Mode = cfg.Mode
	if cfg.Mode == flexio.TimerModeDual8BitPWM {
		tc.Compare = flexio.PackDualPWMCompare(cfg.HighTicks, cfg.LowTicks)
	}
	return tc
}

// channelRecord is the per-channel slot of the status table.
type channelRecord struct {
	duty     uint8
	state    ChannelState
	polarity flexio.PinPolarity
	compare  uint16
}

// ChannelStatus is the recorded status of one timer channel.
type ChannelStatus struct {
	Duty    uint8
	State   ChannelState
	Compare uint16
}

// PWM drives the timer channels of one FlexIO instance as center-aligned
// PWM outputs. It owns the per-channel status table; configuration goes
// through Configure and SetIdle only, so the table has a single writer.
type PWM struct {
	bus   flexio.Bus
	clock ClockSource
	chans [flexio.TimerCount]channelRecord
}

// NewPWM returns a driver for the FlexIO instance behind bus, using clock
// as the functional clock frequency source.
func NewPWM(bus flexio.Bus, clock ClockSource) *PWM {
	return &PWM{bus: bus, clock: clock}
}

// Configure computes and writes the timer configuration for one channel
// and records the applied duty in the status table. On error nothing is
// written: validation happens before the bus is touched.
func (p *PWM) Configure(ch flexio.TimerChannel, pin flexio.OutputPin, freqHz uint32, duty uint8) error {
	if int(ch) >= flexio.TimerCount {
		return flexio.ErrChannelRange
	}
	if int(pin) >= flexio.PinCount {
		return flexio.ErrPinRange
	}

	cfg, err := ComputeConfig(p.clock.ClockHz(), freqHz, duty)
	if err != nil {
		return err
	}

	tc := timerConfig(pin, cfg)
	if err := p.bus.WriteTimerConfig(ch, tc); err != nil {
		return err
	}

	rec := &p.chans[ch]
	rec.duty = cfg.Duty
	rec.polarity = cfg.Polarity
	rec.compare = tc.Compare
	switch {
	case cfg.Mode == flexio.TimerModeDual8BitPWM:
		rec.state = ChannelPWM
	case cfg.Polarity == flexio.PinActiveLow:
		rec.state = ChannelIdleHigh
	default:
		rec.state = ChannelIdleLow
	}
	return nil
}

// SetIdle parks a channel: the compare register is cleared, waveform
// generation is disabled and the pin polarity is chosen so the output
// holds the requested idle level. The recorded duty resets to 0.
func (p *PWM) SetIdle(ch flexio.TimerChannel, pin flexio.OutputPin, idleHigh bool) error {
	if int(ch) >= flexio.TimerCount {
		return flexio.ErrChannelRange
	}
	if int(pin) >= flexio.PinCount {
		return flexio.ErrPinRange
	}

	if err := p.bus.ClearTimerCompare(ch); err != nil {
		return err
	}

	tc := pwmTimerBase(pin)
	if idleHigh {
		tc.PinPolarity = flexio.PinActiveLow
	}
	if err := p.bus.WriteTimerConfig(ch, tc); err != nil {
		return err
	}

	rec := &p.chans[ch]
	rec.duty = 0
	rec.compare = 0
	rec.polarity = tc.PinPolarity
	if idleHigh {
		rec.state = ChannelIdleHigh
	} else {
		rec.state = ChannelIdleLow
	}
	return nil
}

// Duty returns the duty percentage recorded for a channel. Out-of-range
// channels read as 0.
func (p *PWM) Duty(ch flexio.TimerChannel) uint8 {
	if int(ch) >= flexio.TimerCount {
		return 0
	}
	return p.chans[ch].duty
}

// State returns the recorded state of a channel.
func (p *PWM) State(ch flexio.TimerChannel) ChannelState {
	if int(ch) >= flexio.TimerCount {
		return ChannelDisabled
	}
	return p.chans[ch].state
}

// Status returns the recorded status of a channel.
func (p *PWM) Status(ch flexio.TimerChannel) ChannelStatus {
	if int(ch) >= flexio.TimerCount {
		return ChannelStatus{}
	}
	rec := p.chans[ch]
	return ChannelStatus{Duty: rec.duty, State: rec.state, Compare: rec.compare}
}

// OutputLevel reports the logical PWM level of a pin: the sampled level
// corrected for the channel's polarity inversion, so an idle-high
// inverted output still reads as logically low. Requires the bus to
// implement flexio.PinReader.
func (p *PWM) OutputLevel(ch flexio.TimerChannel, pin flexio.OutputPin) (flexio.Level, error) {
	if int(ch) >= flexio.TimerCount {
		return flexio.Low, flexio.ErrChannelRange
	}
	if int(pin) >= flexio.PinCount {
		return flexio.Low, flexio.ErrPinRange
	}

	pr, ok := p.bus.(flexio.PinReader)
	if !ok {
		return flexio.Low, ErrNoPinStatus
	}

	raw := pr.PinLevel(pin)
	inverted := p.chans[ch].polarity == flexio.PinActiveLow
	return flexio.Level(bool(raw) != inverted), nil
}

// InitPWMCommands registers the PWM introspection commands for driver p,
// along with the constants and enumerations the host needs to interpret
// their responses.
func InitPWMCommands(p *PWM) {
	RegisterCommand("get_clock", "", func(data *[]byte) error {
		return handleGetClock(p, data)
	})
	RegisterCommand("get_pwm_status", "channel=%c", func(data *[]byte) error {
		return handleGetPWMStatus(p, data)
	})
	RegisterCommand("get_output_level", "channel=%c pin=%c", func(data *[]byte) error {
		return handleGetOutputLevel(p, data)
	})

	// Response messages (device -> host)
	RegisterResponse("clock", "clock=%u")
	RegisterResponse("pwm_status", "channel=%c duty=%c state=%c compare=%hu")
	RegisterResponse("output_level", "channel=%c pin=%c valid=%c level=%c")

	RegisterConstant("TIMER_CHANNELS", uint32(flexio.TimerCount))
	RegisterConstant("PWM_OVERHEAD_TICKS", uint32(PWMOverheadTicks))
	RegisterConstant("PWM_CLOCK_DIV_MIN", uint32(2))
	RegisterConstant("PWM_CLOCK_DIV_MAX", uint32(512))

	RegisterEnumeration("pwm_state", []string{"disabled", "idle_low", "idle_high", "pwm"})
	registerPinEnumeration()
}

// registerPinEnumeration names the FXIO_Dn data pins for the dictionary.
func registerPinEnumeration() {
	pins := make([]string, flexio.PinCount)
	for i := range pins {
		pins[i] = "fxio_d" + itoa(i)
	}
	RegisterEnumeration("pin", pins)
}

// handleGetClock reports the FlexIO functional clock frequency.
// Format: get_clock
func handleGetClock(p *PWM, data *[]byte) error {
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, p.clock.ClockHz())
	})
	return nil
}

// handleGetPWMStatus reports one channel's slot of the status table.
// Format: get_pwm_status channel=%c
func handleGetPWMStatus(p *PWM, data *[]byte) error {
	channel, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if channel >= flexio.TimerCount {
		return flexio.ErrChannelRange
	}

	st := p.Status(flexio.TimerChannel(channel))
	SendResponse("pwm_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, channel)
		protocol.EncodeVLQUint(output, uint32(st.Duty))
		protocol.EncodeVLQUint(output, uint32(st.State))
		protocol.EncodeVLQUint(output, uint32(st.Compare))
	})
	return nil
}

// handleGetOutputLevel reports the polarity-corrected level of a pin. A
// register block without pin status answers with valid=0 instead of an
// error, so the host can probe for the capability.
// Format: get_output_level channel=%c pin=%c
func handleGetOutputLevel(p *PWM, data *[]byte) error {
	channel, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if channel >= flexio.TimerCount {
		return flexio.ErrChannelRange
	}
	if pin >= flexio.PinCount {
		return flexio.ErrPinRange
	}

	var valid, level uint32
	lvl, err := p.OutputLevel(flexio.TimerChannel(channel), flexio.OutputPin(pin))
	switch {
	case err == nil:
		valid = 1
		if lvl == flexio.High {
			level = 1
		}
	case errors.Is(err, ErrNoPinStatus):
		// Leave valid=0.
	default:
		return err
	}

	SendResponse("output_level", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, channel)
		protocol.EncodeVLQUint(output, pin)
		protocol.EncodeVLQUint(output, valid)
		protocol.EncodeVLQUint(output, level)
	})
	return nil
}
