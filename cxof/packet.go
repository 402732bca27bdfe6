package cxof

import "encoding/binary"

// Measurement is one calibrated flow sample as carried on the wire.
type Measurement struct {
	DX      int16
	DY      int16
	Quality uint8
}

// Packet is an encoded CXOF record, ready to be written to the link.
type Packet [PacketSize]byte

// Checksum returns the additive checksum of the dx and dy bytes, using the
// unsigned byte view of their two's-complement representation.
func Checksum(dx, dy int16) byte {
	x := uint16(dx)
	y := uint16(dy)
	return byte(x) + byte(x>>8) + byte(y) + byte(y>>8)
}

// Encode packs m into a CXOF packet. The checksum is always recomputed from
// dx and dy.
func Encode(m Measurement) Packet {
	var p Packet
	p[headerOffset] = Header
	p[countOffset] = DataCount
	binary.LittleEndian.PutUint16(p[dxOffset:dyOffset], uint16(m.DX))
	binary.LittleEndian.PutUint16(p[dyOffset:checksumOffset], uint16(m.DY))
	p[checksumOffset] = Checksum(m.DX, m.DY)
	p[qualityOffset] = m.Quality
	p[footerOffset] = Footer
	return p
}

// Bytes returns the packet as a slice backed by a copy.
func (p Packet) Bytes() []byte {
	out := make([]byte, PacketSize)
	copy(out, p[:])
	return out
}

// DX returns the x-axis flow stored in the packet.
func (p Packet) DX() int16 { return int16(binary.LittleEndian.Uint16(p[dxOffset:dyOffset])) }

// DY returns the y-axis flow stored in the packet.
func (p Packet) DY() int16 { return int16(binary.LittleEndian.Uint16(p[dyOffset:checksumOffset])) }

func (p Packet) Quality() uint8 { return p[qualityOffset] }

// Valid reports whether the fixed fields and the checksum are consistent.
func (p Packet) Valid() bool {
	return p[headerOffset] == Header &&
		p[countOffset] == DataCount &&
		p[footerOffset] == Footer &&
		p[checksumOffset] == Checksum(p.DX(), p.DY())
}
