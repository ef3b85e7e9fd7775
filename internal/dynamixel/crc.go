// internal/dynamixel/crc.go
package dynamixel

var crcTable = buildCRCTable(0x8005)

func buildCRCTable(poly uint16) [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// CRC16 computes the protocol 2.0 packet CRC (CRC-16/BUYPASS: poly 0x8005,
// init 0, not reflected) over header through last parameter.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
