package flexio

// Register identifies the register a Sim write log entry went to.
type Register uint8

const (
	RegCTRL Register = iota
	RegTIMCTL
	RegTIMCFG
	RegTIMCMP
)

func (r Register) String() string {
	switch r {
	case RegCTRL:
		return "CTRL"
	case RegTIMCTL:
		return "TIMCTL"
	case RegTIMCFG:
		return "TIMCFG"
	case RegTIMCMP:
		return "TIMCMP"
	}
	return "UNKNOWN"
}

// Write is one register write observed by a Sim block.
type Write struct {
	Reg     Register
	Channel TimerChannel // meaningless for RegCTRL
	Value   uint32
}

// Sim is an in-memory FlexIO register block. It holds the packed register
// values, logs every write in call order, and models the static level a
// configured channel drives on its pin. That is enough for the PWM core
// and the simulator target to run without hardware.
type Sim struct {
	Enabled bool
	TIMCTL  [TimerCount]uint32
	TIMCFG  [TimerCount]uint32
	TIMCMP  [TimerCount]uint32

	writes []Write
	pins   [PinCount]Level
}

var (
	_ Bus       = (*Sim)(nil)
	_ PinReader = (*Sim)(nil)
)

// NewSim returns a Sim with all registers zeroed and the block disabled.
func NewSim() *Sim {
	return &Sim{}
}

func (s *Sim) Enable(on bool) error {
	s.Enabled = on
	var v uint32
	if on {
		v = 1
	}
	s.writes = append(s.writes, Write{Reg: RegCTRL, Value: v})
	return nil
}

func (s *Sim) WriteTimerConfig(ch TimerChannel, cfg TimerConfig) error {
	if int(ch) >= TimerCount {
		return ErrChannelRange
	}

	cfgWord := cfg.ConfigWord()
	cmpWord := uint32(cfg.Compare)
	ctlWord := cfg.ControlWord()

	s.TIMCFG[ch] = cfgWord
	s.writes = append(s.writes, Write{Reg: RegTIMCFG, Channel: ch, Value: cfgWord})
	s.TIMCMP[ch] = cmpWord
	s.writes = append(s.writes, Write{Reg: RegTIMCMP, Channel: ch, Value: cmpWord})
	s.TIMCTL[ch] = ctlWord
	s.writes = append(s.writes, Write{Reg: RegTIMCTL, Channel: ch, Value: ctlWord})
	return nil
}

func (s *Sim) ClearTimerCompare(ch TimerChannel) error {
	if int(ch) >= TimerCount {
		return ErrChannelRange
	}
	s.TIMCMP[ch] = 0
	s.writes = append(s.writes, Write{Reg: RegTIMCMP, Channel: ch, Value: 0})
	return nil
}

// PinLevel implements PinReader. A pin driven by a configured timer
// channel reports that channel's output: the inactive level while the
// timer is disabled, the active level while it runs (a real PIN register
// would sample the waveform mid-period; the model pins it to the start of
// the period). Undriven pins report the level set with SetPinLevel.
func (s *Sim) PinLevel(pin OutputPin) Level {
	if int(pin) >= PinCount {
		return Low
	}
	for ch := 0; ch < TimerCount; ch++ {
		ctl := s.TIMCTL[ch]
		if controlPinConfig(ctl) != PinConfigOutput || controlPin(ctl) != pin {
			continue
		}
		pol := controlPinPolarity(ctl)
		if controlMode(ctl) == TimerModeDisabled {
			return Level(pol == PinActiveLow)
		}
		return Level(pol == PinActiveHigh)
	}
	return s.pins[pin]
}

// SetPinLevel forces the level of an undriven pin, standing in for an
// external signal in tests.
func (s *Sim) SetPinLevel(pin OutputPin, l Level) {
	if int(pin) < PinCount {
		s.pins[pin] = l
	}
}

// Writes returns the register writes seen so far, in call order.
func (s *Sim) Writes() []Write {
	return s.writes
}

// ResetLog clears the write log without touching register state.
func (s *Sim) ResetLog() {
	s.writes = nil
}
