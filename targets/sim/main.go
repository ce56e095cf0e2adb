// flexpwm-sim runs the firmware stack on a host. The simulated FlexIO
// block takes one boot-time PWM configuration from flags, then the
// introspection console is served on a serial device; a pty pair made
// with socat stands in for the board's debug UART.
package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"flexpwm/core"
	"flexpwm/flexio"
	"flexpwm/host/serial"
	"flexpwm/protocol"
)

var (
	device  = flag.String("device", "/dev/ttyS0", "Serial device to serve the console on")
	clockHz = flag.Uint("clock", 12000000, "Simulated FlexIO clock in Hz")
	channel = flag.Uint("channel", 0, "Timer channel")
	pin     = flag.Uint("pin", 0, "Output pin (FXIO_Dn)")
	freqHz  = flag.Uint("freq", 100000, "PWM frequency in Hz")
	duty    = flag.Uint("duty", 50, "Duty cycle in percent")
	verbose = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	core.SetDebugWriter(func(msg string) { log.Debug(msg) })
	core.SetDebugEnabled(*verbose)

	// Register the command set and the board constants, then build the
	// dictionary once everything is in place
	core.InitCoreCommands()
	core.RegisterConstant("MCU", "sim")
	core.RegisterConstant("CLOCK_FREQ", uint32(*clockHz))

	sim := flexio.NewSim()
	pwm := core.NewPWM(sim, core.FixedClock(uint32(*clockHz)))
	core.InitPWMCommands(pwm)
	core.GetGlobalDictionary().BuildDictionary()

	if err := sim.Enable(true); err != nil {
		log.WithError(err).Fatal("failed to enable the FlexIO block")
	}

	// One static configuration at boot, like the hardware demo. On a
	// bad configuration the channel is parked idle low instead.
	err := pwm.Configure(flexio.TimerChannel(*channel), flexio.OutputPin(*pin),
		uint32(*freqHz), uint8(*duty))
	if err != nil {
		log.WithError(err).Error("pwm configuration rejected, parking output idle low")
		if err := pwm.SetIdle(flexio.TimerChannel(*channel), flexio.OutputPin(*pin), false); err != nil {
			log.WithError(err).Fatal("failed to park the output")
		}
	} else {
		log.WithFields(logrus.Fields{
			"channel": *channel,
			"pin":     *pin,
			"freq":    *freqHz,
			"duty":    *duty,
		}).Info("pwm configured")
	}

	port, err := serial.Open(serial.DefaultConfig(*device))
	if err != nil {
		log.WithError(err).Fatal("failed to open console device")
	}

	input := protocol.NewFifoBuffer(512)
	output := protocol.NewScratchOutput()

	transport := protocol.NewTransport(output, core.DispatchCommand)
	transport.SetResetCallback(func() {
		input.Reset()
		output.Reset()
	})
	transport.SetFlushCallback(func() {
		flush(port, output, log)
	})
	core.SetGlobalTransport(transport)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		port.Close()
	}()

	log.WithField("device", *device).Info("serving console")
	serve(port, input, transport, log)
}

// serve runs the console loop, restarting it if a command handler
// panics the parser.
func serve(port serial.Port, input *protocol.FifoBuffer, transport *protocol.Transport, log *logrus.Logger) {
	for serveOnce(port, input, transport, log) {
	}
}

func serveOnce(port serial.Port, input *protocol.FifoBuffer, transport *protocol.Transport, log *logrus.Logger) (restart bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("console loop crashed, restarting")
			transport.Reset()
			restart = true
		}
	}()

	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			input.Write(buf[:n])
			transport.Receive(input)
		}
		if err != nil {
			// A read timeout surfaces as io.EOF with no data
			if err == io.EOF {
				time.Sleep(time.Millisecond)
				continue
			}
			log.WithError(err).Info("console port closed")
			return false
		}
	}
}

// flush pushes buffered frames to the wire. The transport calls this
// after every ACK so the host sees the ACK without waiting on a later
// write.
func flush(port serial.Port, output *protocol.ScratchOutput, log *logrus.Logger) {
	data := output.Result()
	if len(data) == 0 {
		return
	}

	written := 0
	for written < len(data) {
		n, err := port.Write(data[written:])
		if err != nil {
			log.WithError(err).Warn("console write failed, dropping output")
			output.Reset()
			return
		}
		written += n
	}
	output.Reset()
}
