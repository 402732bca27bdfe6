package cxof

// CXOF optical-flow packet constants.
const (
	// Layout (little-endian):
	//   Header (1) | Count (1) | DX (2) | DY (2) | Checksum (1) | Quality (1) | Footer (1)
	PacketSize = 9

	Header = 0xFE
	Footer = 0xAA

	// Number of data items carried by the packet. Fixed by the protocol.
	DataCount = 0x04

	// Field offsets
	headerOffset   = 0
	countOffset    = 1
	dxOffset       = 2
	dyOffset       = 4
	checksumOffset = 6
	qualityOffset  = 7
	footerOffset   = 8

	// Receivers running older INAV builds are fixed at this rate.
	MinBaudRate     = 19200
	DefaultBaudRate = 115200
)
