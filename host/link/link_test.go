package link

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"flexpwm/core"
	"flexpwm/flexio"
	"flexpwm/protocol"
)

// The device stack is registered once per test binary: the command
// registry is process-global, so every test talks to the same simulated
// device with channel 0 running at 100 kHz / 50%.
var (
	deviceSetup sync.Once
	devicePWM   *core.PWM
)

func initDevice(t *testing.T) {
	t.Helper()
	deviceSetup.Do(func() {
		core.InitCoreCommands()
		core.RegisterConstant("MCU", "sim")
		core.RegisterConstant("CLOCK_FREQ", uint32(12000000))

		devicePWM = core.NewPWM(flexio.NewSim(), core.FixedClock(12000000))
		core.InitPWMCommands(devicePWM)
	})
	if err := devicePWM.Configure(0, 0, 100000, 50); err != nil {
		t.Fatalf("device Configure failed: %v", err)
	}
}

// pipePort connects a host transport to the in-process device stack.
// Write feeds the device frame parser synchronously; Read blocks until
// the device has produced output.
type pipePort struct {
	mu      sync.Mutex
	readBuf bytes.Buffer
	closed  bool
	dataCh  chan struct{}

	devInput *protocol.FifoBuffer
	device   *protocol.Transport
}

func newDevicePort() *pipePort {
	p := &pipePort{
		dataCh:   make(chan struct{}, 1),
		devInput: protocol.NewFifoBuffer(512),
	}

	devOutput := protocol.NewScratchOutput()
	p.device = protocol.NewTransport(devOutput, core.DispatchCommand)
	p.device.SetFlushCallback(func() {
		p.push(devOutput.Result())
		devOutput.Reset()
	})
	core.SetGlobalTransport(p.device)

	return p
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.devInput.Write(b)
	p.device.Receive(p.devInput)
	return len(b), nil
}

func (p *pipePort) Read(b []byte) (int, error) {
	for {
		p.mu.Lock()
		if p.readBuf.Len() > 0 {
			n, _ := p.readBuf.Read(b)
			p.mu.Unlock()
			return n, nil
		}
		closed := p.closed
		p.mu.Unlock()

		if closed {
			return 0, io.EOF
		}
		<-p.dataCh
	}
}

func (p *pipePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.signal()
	return nil
}

func (p *pipePort) push(data []byte) {
	if len(data) == 0 {
		return
	}
	p.mu.Lock()
	p.readBuf.Write(data)
	p.mu.Unlock()
	p.signal()
}

func (p *pipePort) signal() {
	select {
	case p.dataCh <- struct{}{}:
	default:
	}
}

// newTestConsole connects a console to the simulated device and fetches
// the dictionary
func newTestConsole(t *testing.T) *Console {
	t.Helper()
	initDevice(t)

	c := NewConsole(newDevicePort())
	c.Logger.SetOutput(io.Discard)
	t.Cleanup(func() { c.Close() })

	if err := c.RetrieveDictionary(); err != nil {
		t.Fatalf("RetrieveDictionary failed: %v", err)
	}
	return c
}

func TestConsoleRetrieveDictionary(t *testing.T) {
	c := newTestConsole(t)

	dict := c.Dictionary()
	if dict == nil {
		t.Fatal("Dictionary is nil after retrieval")
	}

	if dict.Version != "flexpwm-0.1.0" {
		t.Errorf("Expected version flexpwm-0.1.0, got %q", dict.Version)
	}

	if id, err := c.responseID("identify_response"); err != nil || id != 0 {
		t.Errorf("Expected identify_response at ID 0, got %d (err=%v)", id, err)
	}
	if id, err := c.commandID("identify"); err != nil || id != 1 {
		t.Errorf("Expected identify at ID 1, got %d (err=%v)", id, err)
	}
	for _, name := range []string{"get_clock", "get_pwm_status", "get_output_level"} {
		if _, err := c.commandID(name); err != nil {
			t.Errorf("Dictionary missing command %s: %v", name, err)
		}
	}
	for _, name := range []string{"clock", "pwm_status", "output_level"} {
		if _, err := c.responseID(name); err != nil {
			t.Errorf("Dictionary missing response %s: %v", name, err)
		}
	}

	// The raw map keeps the full format strings
	if _, ok := dict.Commands["get_pwm_status channel=%c"]; !ok {
		t.Error("Expected full format key for get_pwm_status")
	}

	if dict.Config["MCU"] != "sim" {
		t.Errorf("Expected MCU=sim, got %q", dict.Config["MCU"])
	}
	if dict.Config["TIMER_CHANNELS"] != "8" {
		t.Errorf("Expected TIMER_CHANNELS=8, got %q", dict.Config["TIMER_CHANNELS"])
	}

	if v, ok := dict.Enumerations["pwm_state"]["pwm"]; !ok || v != 3 {
		t.Errorf("Expected pwm_state pwm=3, got %d (ok=%v)", v, ok)
	}
	if n := len(dict.Enumerations["pin"]); n != flexio.PinCount {
		t.Errorf("Expected %d pin names, got %d", flexio.PinCount, n)
	}

	// The reassembled bytes must match what the device serves
	if !bytes.Equal(c.RawDictionary(), core.GetGlobalDictionary().Generate()) {
		t.Error("Raw dictionary differs from the device dictionary")
	}
}

func TestConsoleClockHz(t *testing.T) {
	c := newTestConsole(t)

	clock, err := c.ClockHz()
	if err != nil {
		t.Fatalf("ClockHz failed: %v", err)
	}
	if clock != 12000000 {
		t.Errorf("Expected clock 12000000, got %d", clock)
	}
}

func TestConsolePWMStatus(t *testing.T) {
	c := newTestConsole(t)

	status, err := c.PWMStatus(0)
	if err != nil {
		t.Fatalf("PWMStatus failed: %v", err)
	}
	if status.Channel != 0 || status.Duty != 50 || status.State != "pwm" || status.Compare != 0x3A3C {
		t.Errorf("Unexpected status for channel 0: %+v", status)
	}

	// Channels never configured report as disabled
	status, err = c.PWMStatus(5)
	if err != nil {
		t.Fatalf("PWMStatus failed: %v", err)
	}
	if status.Duty != 0 || status.State != "disabled" || status.Compare != 0 {
		t.Errorf("Unexpected status for idle channel 5: %+v", status)
	}
}

func TestConsoleOutputLevel(t *testing.T) {
	c := newTestConsole(t)

	level, err := c.OutputLevel(0, 0)
	if err != nil {
		t.Fatalf("OutputLevel failed: %v", err)
	}
	if !level.Valid {
		t.Fatal("Expected a valid level from the simulated block")
	}
	// Channel 0 runs active high, so the logical level reads high
	if !level.Level {
		t.Error("Expected logical high on the running channel")
	}
}

func TestConsoleSend(t *testing.T) {
	c := newTestConsole(t)

	if err := c.Send("get_clock", nil); err != nil {
		t.Errorf("Send of a dictionary command failed: %v", err)
	}

	if err := c.Send("does_not_exist", nil); err == nil {
		t.Error("Expected error sending a command missing from the dictionary")
	}
}
