//go:build mcxn947

package main

import (
	"runtime/volatile"
	"unsafe"

	"flexpwm/flexio"
)

// FLEXIO0 register block on the MCX N94x.
//
// Register offsets from the instance base:
//
//	CTRL      @ 0x008
//	PIN       @ 0x00C - pin status, one bit per FXIO_Dn
//	TIMCTL[n] @ 0x400 + 4n
//	TIMCFG[n] @ 0x480 + 4n
//	TIMCMP[n] @ 0x500 + 4n
const (
	flexio0Base = 0x40105000

	regCTRL   = flexio0Base + 0x008
	regPIN    = flexio0Base + 0x00C
	regTIMCTL = flexio0Base + 0x400
	regTIMCFG = flexio0Base + 0x480
	regTIMCMP = flexio0Base + 0x500
)

// CTRL bits
const (
	ctrlFlexEn = 1 << 0
)

var (
	flexioCtrl = (*volatile.Register32)(unsafe.Pointer(uintptr(regCTRL)))
	flexioPin  = (*volatile.Register32)(unsafe.Pointer(uintptr(regPIN)))

	flexioTimCtl = (*[flexio.TimerCount]volatile.Register32)(unsafe.Pointer(uintptr(regTIMCTL)))
	flexioTimCfg = (*[flexio.TimerCount]volatile.Register32)(unsafe.Pointer(uintptr(regTIMCFG)))
	flexioTimCmp = (*[flexio.TimerCount]volatile.Register32)(unsafe.Pointer(uintptr(regTIMCMP)))
)

// MemBus drives the FLEXIO0 register block directly.
type MemBus struct{}

// Enable sets or clears the FLEXEN bit
func (MemBus) Enable(on bool) error {
	if on {
		flexioCtrl.SetBits(ctrlFlexEn)
	} else {
		flexioCtrl.ClearBits(ctrlFlexEn)
	}
	return nil
}

// WriteTimerConfig writes the channel's three timer registers. The
// control word goes last because a non-disabled TIMOD starts the timer.
func (MemBus) WriteTimerConfig(ch flexio.TimerChannel, cfg flexio.TimerConfig) error {
	if ch >= flexio.TimerCount {
		return flexio.ErrChannelRange
	}

	flexioTimCfg[ch].Set(cfg.ConfigWord())
	flexioTimCmp[ch].Set(uint32(cfg.Compare))
	flexioTimCtl[ch].Set(cfg.ControlWord())
	return nil
}

// ClearTimerCompare zeroes the channel's TIMCMP register
func (MemBus) ClearTimerCompare(ch flexio.TimerChannel) error {
	if ch >= flexio.TimerCount {
		return flexio.ErrChannelRange
	}

	flexioTimCmp[ch].Set(0)
	return nil
}

// PinLevel reads one bit of the PIN status register. The MCX N94x
// FlexIO has the pin status feature, so MemBus implements
// flexio.PinReader.
func (MemBus) PinLevel(pin flexio.OutputPin) flexio.Level {
	return flexio.Level(flexioPin.HasBits(1 << uint32(pin)))
}
