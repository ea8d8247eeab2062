package pages

import (
	"github.com/sigurn/crc16"
)

var sumTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Sum16 returns the 16 bit checksum used for names, tags and page data
func Sum16(data []byte) uint16 {
	return crc16.Checksum(data, sumTable)
}

// NameSum returns the checksum stored in the tag of a dir or file's page 0
func NameSum(name string) uint16 {
	return Sum16([]byte(name))
}
