package core

import (
	"bytes"
	"strings"
	"testing"

	"flexpwm/flexio"
	"flexpwm/protocol"
)

// swapGlobals installs a fresh registry and dictionary for one test
func swapGlobals(t *testing.T) {
	t.Helper()
	oldReg, oldDict, oldTransport := globalRegistry, globalDictionary, globalTransport
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	globalTransport = nil
	t.Cleanup(func() {
		globalRegistry, globalDictionary, globalTransport = oldReg, oldDict, oldTransport
	})
}

// parseResponse unpacks the first frame in output and returns the
// response ID and the payload after it
func parseResponse(t *testing.T, output *protocol.ScratchOutput) (uint16, []byte) {
	t.Helper()
	frame := output.Result()
	if len(frame) < protocol.MessageLengthMin {
		t.Fatalf("No frame in output: %v", frame)
	}
	msgLen := int(frame[protocol.MessagePositionLen])
	if msgLen > len(frame) {
		t.Fatalf("Frame length %d exceeds output size %d", msgLen, len(frame))
	}
	payload := frame[protocol.MessageHeaderSize : msgLen-protocol.MessageTrailerSize]
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Bad response ID: %v", err)
	}
	return uint16(id), payload
}

func TestInitCoreCommandsBootstrapIDs(t *testing.T) {
	swapGlobals(t)
	InitCoreCommands()

	resp, ok := globalRegistry.GetCommandByName("identify_response")
	if !ok || resp.ID != 0 {
		t.Errorf("identify_response must have ID 0, got %+v (ok=%v)", resp, ok)
	}
	if ok && resp.Handler != nil {
		t.Error("identify_response must not have a handler")
	}

	ident, ok := globalRegistry.GetCommandByName("identify")
	if !ok || ident.ID != 1 {
		t.Errorf("identify must have ID 1, got %+v (ok=%v)", ident, ok)
	}
	if ok && ident.Handler == nil {
		t.Error("identify must have a handler")
	}
}

func TestIdentifyChunking(t *testing.T) {
	swapGlobals(t)
	InitCoreCommands()

	output := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(output, nil))

	full := GetGlobalDictionary().Generate()

	scratch := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(scratch, 0)  // offset
	protocol.EncodeVLQUint(scratch, 24) // count
	data := scratch.Result()

	if err := DispatchCommand(1, &data); err != nil {
		t.Fatalf("identify dispatch failed: %v", err)
	}

	id, payload := parseResponse(t, output)
	if id != 0 {
		t.Fatalf("Expected identify_response ID 0, got %d", id)
	}

	offset, err := protocol.DecodeVLQUint(&payload)
	if err != nil || offset != 0 {
		t.Errorf("Expected offset 0, got %d (err %v)", offset, err)
	}
	chunk, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		t.Fatalf("Failed to decode chunk: %v", err)
	}
	if !bytes.Equal(chunk, full[:24]) {
		t.Errorf("Chunk mismatch: expected %q, got %q", full[:24], chunk)
	}

	// A request into the tail returns the short remainder
	output.Reset()
	scratch.Reset()
	tailOffset := uint32(len(full) - 5)
	protocol.EncodeVLQUint(scratch, tailOffset)
	protocol.EncodeVLQUint(scratch, 24)
	data = scratch.Result()

	if err := DispatchCommand(1, &data); err != nil {
		t.Fatalf("identify dispatch failed: %v", err)
	}
	_, payload = parseResponse(t, output)
	offset, _ = protocol.DecodeVLQUint(&payload)
	chunk, err = protocol.DecodeVLQBytes(&payload)
	if err != nil {
		t.Fatalf("Failed to decode chunk: %v", err)
	}
	if offset != tailOffset || !bytes.Equal(chunk, full[tailOffset:]) {
		t.Errorf("Tail chunk mismatch at offset %d: got %q", offset, chunk)
	}
}

func TestInitPWMCommandsDictionary(t *testing.T) {
	swapGlobals(t)
	InitCoreCommands()

	p := NewPWM(flexio.NewSim(), FixedClock(12000000))
	InitPWMCommands(p)

	dictStr := string(GetGlobalDictionary().Generate())

	for _, want := range []string{
		`"get_clock"`,
		`"get_pwm_status channel=%c"`,
		`"get_output_level channel=%c pin=%c"`,
		`"clock clock=%u"`,
		`"pwm_status channel=%c duty=%c state=%c compare=%hu"`,
		`"output_level channel=%c pin=%c valid=%c level=%c"`,
		`"TIMER_CHANNELS":"8"`,
		`"PWM_OVERHEAD_TICKS":"2"`,
		`"PWM_CLOCK_DIV_MIN":"2"`,
		`"PWM_CLOCK_DIV_MAX":"512"`,
		`"fxio_d0":0`,
		`"fxio_d31":31`,
		`"idle_high":2`,
	} {
		if !strings.Contains(dictStr, want) {
			t.Errorf("Dictionary missing %s\n%s", want, dictStr)
		}
	}
}

func TestGetClockCommand(t *testing.T) {
	swapGlobals(t)
	InitCoreCommands()

	p := NewPWM(flexio.NewSim(), FixedClock(12000000))
	InitPWMCommands(p)

	output := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(output, nil))

	cmd, ok := globalRegistry.GetCommandByName("get_clock")
	if !ok {
		t.Fatal("get_clock not registered")
	}

	var data []byte
	if err := DispatchCommand(cmd.ID, &data); err != nil {
		t.Fatalf("get_clock dispatch failed: %v", err)
	}

	id, payload := parseResponse(t, output)
	respCmd, _ := globalRegistry.GetCommandByName("clock")
	if id != respCmd.ID {
		t.Errorf("Expected clock response ID %d, got %d", respCmd.ID, id)
	}
	clock, err := protocol.DecodeVLQUint(&payload)
	if err != nil || clock != 12000000 {
		t.Errorf("Expected clock 12000000, got %d (err %v)", clock, err)
	}
}

func TestGetPWMStatusCommand(t *testing.T) {
	swapGlobals(t)
	InitCoreCommands()

	p := NewPWM(flexio.NewSim(), FixedClock(12000000))
	InitPWMCommands(p)

	if err := p.Configure(3, 6, 100000, 50); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	output := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(output, nil))

	cmd, _ := globalRegistry.GetCommandByName("get_pwm_status")
	scratch := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(scratch, 3)
	data := scratch.Result()

	if err := DispatchCommand(cmd.ID, &data); err != nil {
		t.Fatalf("get_pwm_status dispatch failed: %v", err)
	}

	id, payload := parseResponse(t, output)
	respCmd, _ := globalRegistry.GetCommandByName("pwm_status")
	if id != respCmd.ID {
		t.Errorf("Expected pwm_status response ID %d, got %d", respCmd.ID, id)
	}

	var values [4]uint32
	for i := range values {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("Failed to decode field %d: %v", i, err)
		}
		values[i] = v
	}
	if values[0] != 3 || values[1] != 50 || values[2] != uint32(ChannelPWM) || values[3] != 0x3A3C {
		t.Errorf("Expected channel 3, duty 50, state %d, compare 0x3A3C; got %v", ChannelPWM, values)
	}

	// Out-of-range channel surfaces as a handler error
	scratch.Reset()
	protocol.EncodeVLQUint(scratch, 9)
	data = scratch.Result()
	if err := DispatchCommand(cmd.ID, &data); err == nil {
		t.Error("Expected error for out-of-range channel")
	}
}

func TestGetOutputLevelCommand(t *testing.T) {
	swapGlobals(t)
	InitCoreCommands()

	p := NewPWM(flexio.NewSim(), FixedClock(12000000))
	InitPWMCommands(p)

	// Idle high reads back logically low through the polarity correction
	if err := p.SetIdle(0, 0, true); err != nil {
		t.Fatalf("SetIdle failed: %v", err)
	}

	output := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(output, nil))

	cmd, _ := globalRegistry.GetCommandByName("get_output_level")
	scratch := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(scratch, 0) // channel
	protocol.EncodeVLQUint(scratch, 0) // pin
	data := scratch.Result()

	if err := DispatchCommand(cmd.ID, &data); err != nil {
		t.Fatalf("get_output_level dispatch failed: %v", err)
	}

	id, payload := parseResponse(t, output)
	respCmd, _ := globalRegistry.GetCommandByName("output_level")
	if id != respCmd.ID {
		t.Errorf("Expected output_level response ID %d, got %d", respCmd.ID, id)
	}

	var values [4]uint32
	for i := range values {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("Failed to decode field %d: %v", i, err)
		}
		values[i] = v
	}
	if values[0] != 0 || values[1] != 0 || values[2] != 1 || values[3] != 0 {
		t.Errorf("Expected channel 0, pin 0, valid 1, level 0; got %v", values)
	}
}

func TestGetOutputLevelNoPinStatus(t *testing.T) {
	swapGlobals(t)
	InitCoreCommands()

	p := NewPWM(writeOnlyBus{}, FixedClock(12000000))
	InitPWMCommands(p)

	output := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(output, nil))

	cmd, _ := globalRegistry.GetCommandByName("get_output_level")
	scratch := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(scratch, 0)
	protocol.EncodeVLQUint(scratch, 0)
	data := scratch.Result()

	if err := DispatchCommand(cmd.ID, &data); err != nil {
		t.Fatalf("get_output_level dispatch failed: %v", err)
	}

	_, payload := parseResponse(t, output)
	var values [4]uint32
	for i := range values {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("Failed to decode field %d: %v", i, err)
		}
		values[i] = v
	}
	if values[2] != 0 {
		t.Errorf("Expected valid 0 without pin status support, got %v", values)
	}
}
