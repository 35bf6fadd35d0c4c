package comm

import "github.com/sigurn/crc8"

// Default CRC parameters (CRC-8/SMBUS): x^8 + x^2 + x + 1.
const (
	DefaultCRCPoly byte = 0x07
	DefaultCRCInit byte = 0x00
)

// Checksum computes the 8-bit CRC appended to every message.
type Checksum struct {
	table *crc8.Table
}

// DefaultChecksum uses DefaultCRCPoly and DefaultCRCInit.
var DefaultChecksum = NewChecksum(DefaultCRCPoly, DefaultCRCInit)

// NewChecksum creates a Checksum with the generator polynomial and initial
// value. Input and output are not reflected and no final xor is applied.
func NewChecksum(poly, init byte) *Checksum {
	return &Checksum{table: crc8.MakeTable(crc8.Params{
		Poly: poly,
		Init: init,
		Name: "CRC-8/BRIDGE",
	})}
}

// Sum computes the checksum over data.
func (c *Checksum) Sum(data []byte) byte {
	return crc8.Checksum(data, c.table)
}

// Verify checks the last byte of msg is the checksum of the rest.
func (c *Checksum) Verify(msg []byte) bool {
	if len(msg) == 0 {
		return false
	}
	n := len(msg) - 1
	return c.Sum(msg[:n]) == msg[n]
}
