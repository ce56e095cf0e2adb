package core

import (
	"flexpwm/protocol"
)

// InitCoreCommands registers the protocol bootstrap commands.
// Registration order matters here: before the host has fetched the
// dictionary it only knows the identify pair by convention, so
// identify_response must take ID 0 and identify ID 1.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1
}

// handleIdentify returns chunks of the data dictionary
// Format: identify offset=%u count=%c
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	count8, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count8))

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})

	return nil
}

// SendResponse sends a response message using the global transport. With
// no transport attached the response is dropped, which keeps handlers
// callable from tests that only care about state changes.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}

	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// All responses are pre-registered alongside their commands.
		panic("response not registered: " + responseName)
	}

	globalTransport.SendCommand(cmd.ID, args)
}

// Global transport for sending responses (set by main)
var globalTransport *protocol.Transport

// SetGlobalTransport sets the global transport for sending responses
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}
