package unav

const crc7Poly = 0x91

var crcTable = makeCrcTable()

func makeCrcTable() (table [256]uint8) {
	for i := range table {
		val := uint8(i)
		for j := 0; j < 8; j++ {
			if val&1 != 0 {
				val ^= crc7Poly
			}
			val >>= 1
		}
		table[i] = val
	}
	return
}

// crc7 continues the checksum crc over buf. The result uses the low 7 bits only.
func crc7(crc uint8, buf []byte) uint8 {
	for _, v := range buf {
		crc = crcTable[crc^v]
	}
	return crc & 0x7f
}
