// Package link is the host side of the console: it connects to a device
// over serial, retrieves and parses the data dictionary, and exposes the
// read-only queries as typed calls.
package link

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"flexpwm/host/serial"
	"flexpwm/protocol"
)

// Bootstrap command IDs, fixed by convention so the dictionary itself
// can be fetched before any dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1
)

// How long a query waits for its response frame.
const queryTimeout = 1 * time.Second

// Console is a connection to one device console.
type Console struct {
	Logger *logrus.Logger

	transport *protocol.HostTransport

	dict    *Dictionary
	rawDict []byte

	// Name -> ID indexes derived from the dictionary format strings
	commands  map[string]uint16
	responses map[string]uint16
}

// Dictionary is the parsed form of the JSON identify data. Commands and
// Responses key the full format string (name plus argument signature) to
// the message ID.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// ChannelStatus is one pwm_status response in decoded form.
type ChannelStatus struct {
	Channel uint8
	Duty    uint8
	State   string
	Compare uint16
}

// PinLevel is one output_level response in decoded form. Valid is false
// when the device's FlexIO block has no pin status register.
type PinLevel struct {
	Channel uint8
	Pin     uint8
	Valid   bool
	Level   bool
}

// NewConsole wraps an already open port. The caller may replace Logger
// before using the console.
func NewConsole(port io.ReadWriteCloser) *Console {
	return &Console{
		Logger:    logrus.New(),
		transport: protocol.NewHostTransport(port),
	}
}

// Connect opens the serial device with the console defaults and returns
// a console attached to it.
func Connect(device string) (*Console, error) {
	return ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the serial device with a custom serial config
func ConnectWithConfig(cfg *serial.Config) (*Console, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	c := NewConsole(port)

	// Give the device time to settle if it just powered on
	time.Sleep(100 * time.Millisecond)

	return c, nil
}

// Close closes the connection
func (c *Console) Close() error {
	if c.transport != nil {
		return c.transport.Close()
	}
	return nil
}

// RetrieveDictionary fetches the complete dictionary in identify chunks
// and parses it.
func (c *Console) RetrieveDictionary() error {
	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000 // safety limit against a device that never runs dry

	for i := 0; i < maxIterations; i++ {
		chunk, err := c.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}

		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		c.Logger.WithField("bytes", offset).Debug("retrieving dictionary")

		// A short chunk is the end of the data
		if len(chunk) < int(chunkSize) {
			break
		}
	}

	c.rawDict = dictBuffer.Bytes()
	c.Logger.Infof("dictionary retrieved: %d bytes", len(c.rawDict))

	dict := &Dictionary{}
	if err := json.Unmarshal(c.rawDict, dict); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	c.dict = dict
	c.commands = indexByName(dict.Commands)
	c.responses = indexByName(dict.Responses)

	return nil
}

// indexByName maps the first word of each format string to its ID, so
// messages can be addressed by name alone.
func indexByName(formats map[string]int) map[string]uint16 {
	byName := make(map[string]uint16, len(formats))
	for format, id := range formats {
		name := format
		if i := strings.IndexByte(format, ' '); i >= 0 {
			name = format[:i]
		}
		byName[name] = uint16(id)
	}
	return byName
}

// sendIdentify requests one dictionary chunk by the bootstrap IDs
func (c *Console) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	c.transport.DrainResponses()

	err := c.transport.SendCommand(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify: %w", err)
	}

	resp, err := c.transport.ReceiveResponse(queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	payload := resp.Payload

	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response ID: %w", err)
	}
	if cmdID != identifyResponseID {
		return nil, fmt.Errorf("unexpected response ID %d (expected %d)", cmdID, identifyResponseID)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chunk data: %w", err)
	}

	return data, nil
}

// Dictionary returns the parsed dictionary, nil before RetrieveDictionary
func (c *Console) Dictionary() *Dictionary {
	return c.dict
}

// RawDictionary returns the raw dictionary bytes
func (c *Console) RawDictionary() []byte {
	return c.rawDict
}

// commandID resolves a command name through the dictionary
func (c *Console) commandID(name string) (uint16, error) {
	if c.dict == nil {
		return 0, fmt.Errorf("dictionary not loaded")
	}
	id, ok := c.commands[name]
	if !ok {
		return 0, fmt.Errorf("unknown command: %s", name)
	}
	return id, nil
}

// responseID resolves a response name through the dictionary
func (c *Console) responseID(name string) (uint16, error) {
	if c.dict == nil {
		return 0, fmt.Errorf("dictionary not loaded")
	}
	id, ok := c.responses[name]
	if !ok {
		return 0, fmt.Errorf("unknown response: %s", name)
	}
	return id, nil
}

// Send sends a named command without waiting for a response frame. The
// device still has to ACK the frame.
func (c *Console) Send(name string, args func(output protocol.OutputBuffer)) error {
	cmdID, err := c.commandID(name)
	if err != nil {
		return err
	}
	return c.transport.SendCommand(cmdID, args)
}

// query sends a named command and returns the payload of its named
// response, with the response ID already consumed.
func (c *Console) query(cmdName, respName string, args func(output protocol.OutputBuffer)) ([]byte, error) {
	cmdID, err := c.commandID(cmdName)
	if err != nil {
		return nil, err
	}
	respID, err := c.responseID(respName)
	if err != nil {
		return nil, err
	}

	c.transport.DrainResponses()

	if err := c.transport.SendCommand(cmdID, args); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmdName, err)
	}

	resp, err := c.transport.ReceiveResponse(queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("no %s response: %w", respName, err)
	}

	payload := resp.Payload
	gotID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response ID: %w", err)
	}
	if uint16(gotID) != respID {
		return nil, fmt.Errorf("unexpected response ID %d (expected %d for %s)", gotID, respID, respName)
	}

	return payload, nil
}

// ClockHz queries the device's FlexIO clock frequency
func (c *Console) ClockHz() (uint32, error) {
	payload, err := c.query("get_clock", "clock", nil)
	if err != nil {
		return 0, err
	}

	clock, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, fmt.Errorf("failed to decode clock: %w", err)
	}
	return clock, nil
}

// PWMStatus queries the recorded configuration of one timer channel
func (c *Console) PWMStatus(channel uint8) (*ChannelStatus, error) {
	payload, err := c.query("get_pwm_status", "pwm_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(channel))
	})
	if err != nil {
		return nil, err
	}

	fields, err := decodeFields(payload, 4)
	if err != nil {
		return nil, fmt.Errorf("bad pwm_status payload: %w", err)
	}
	if fields[0] != uint32(channel) {
		return nil, fmt.Errorf("pwm_status for channel %d, requested %d", fields[0], channel)
	}

	return &ChannelStatus{
		Channel: uint8(fields[0]),
		Duty:    uint8(fields[1]),
		State:   c.stateName(fields[2]),
		Compare: uint16(fields[3]),
	}, nil
}

// OutputLevel queries the polarity-corrected output level of one pin
func (c *Console) OutputLevel(channel, pin uint8) (*PinLevel, error) {
	payload, err := c.query("get_output_level", "output_level", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(channel))
		protocol.EncodeVLQUint(output, uint32(pin))
	})
	if err != nil {
		return nil, err
	}

	fields, err := decodeFields(payload, 4)
	if err != nil {
		return nil, fmt.Errorf("bad output_level payload: %w", err)
	}

	return &PinLevel{
		Channel: uint8(fields[0]),
		Pin:     uint8(fields[1]),
		Valid:   fields[2] != 0,
		Level:   fields[3] != 0,
	}, nil
}

// decodeFields decodes n consecutive VLQ integers
func decodeFields(payload []byte, n int) ([]uint32, error) {
	fields := make([]uint32, n)
	for i := 0; i < n; i++ {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = v
	}
	return fields, nil
}

// stateName maps a pwm_state value through the dictionary enumeration,
// falling back to the bare number for unknown values.
func (c *Console) stateName(value uint32) string {
	if c.dict != nil {
		for name, v := range c.dict.Enumerations["pwm_state"] {
			if uint32(v) == value {
				return name
			}
		}
	}
	return strconv.FormatUint(uint64(value), 10)
}

// PrintDictionary prints a summary of the dictionary to stdout
func (c *Console) PrintDictionary() {
	if c.dict == nil {
		fmt.Println("No dictionary loaded")
		return
	}

	fmt.Println("=== Device Dictionary ===")
	fmt.Printf("Version: %s\n", c.dict.Version)
	fmt.Printf("Build:   %s\n", c.dict.BuildVersions)

	fmt.Println("\nConfig:")
	for _, k := range sortedKeys(c.dict.Config) {
		fmt.Printf("  %s = %s\n", k, c.dict.Config[k])
	}

	fmt.Printf("\nCommands (%d):\n", len(c.dict.Commands))
	printByID(c.dict.Commands)

	fmt.Printf("\nResponses (%d):\n", len(c.dict.Responses))
	printByID(c.dict.Responses)

	if len(c.dict.Enumerations) > 0 {
		fmt.Printf("\nEnumerations (%d):\n", len(c.dict.Enumerations))
		names := make([]string, 0, len(c.dict.Enumerations))
		for name := range c.dict.Enumerations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %d values\n", name, len(c.dict.Enumerations[name]))
		}
	}

	fmt.Println("=========================")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printByID(m map[string]int) {
	type entry struct {
		name string
		id   int
	}
	entries := make([]entry, 0, len(m))
	for name, id := range m {
		entries = append(entries, entry{name, id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		fmt.Printf("  [%d] %s\n", e.id, e.name)
	}
}
