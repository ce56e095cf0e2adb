// Package protocol implements the framed serial link between the host
// and the PWM controller. Frames carry a length/sequence header, one or
// more VLQ-encoded commands, a big-endian CRC16 and a trailing sync
// byte. The device side (Transport) parses commands and emits ACKs and
// responses; the host side (HostTransport) sends commands and waits for
// the matching ACK.
package protocol

// Frame layout constants
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// The sequence byte carries MessageDest in its high bits in both
	// directions; only the low MessageSeqMask bits count.
	MessageDest    = 0x10
	MessageSeqMask = 0x0F

	// ScratchMax sizes the output scratch buffer. Larger than one frame
	// so several responses can queue between flushes.
	ScratchMax = 512
)
