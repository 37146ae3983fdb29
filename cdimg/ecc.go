package cdimg

// ecc.go implements the CD-ROM Reed-Solomon Product Code (ECMA-130) used
// to synthesize the layer-2 EDC and ECC fields of a raw sector (spec
// §4.1.4). The EDC is a reflected 32-bit CRC over the polynomial
// 0xD8018001; the ECC is a two-level (P then Q) Reed-Solomon parity
// computed in GF(256) under the generator polynomial 0x11D.

var edcTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		edc := uint32(i)
		for j := 0; j < 8; j++ {
			if edc&1 != 0 {
				edc = (edc >> 1) ^ 0xD8018001
			} else {
				edc >>= 1
			}
		}
		edcTable[i] = edc
	}
}

// edcCompute returns the CD-ROM EDC checksum over data.
func edcCompute(data []byte) uint32 {
	var edc uint32
	for _, b := range data {
		edc = (edc >> 8) ^ edcTable[byte(edc)^b]
	}
	return edc
}

var eccFLUT, eccBLUT [256]byte

func init() {
	for i := 0; i < 256; i++ {
		j := i << 1
		if i&0x80 != 0 {
			j ^= 0x11D
		}
		eccFLUT[i] = byte(j)
		eccBLUT[i^j] = byte(i)
	}
}

// eccComputeBlock runs the P or Q parity pass over src, writing
// 2*majorCount bytes to dest. This is the standard interleaved GF(256)
// accumulation used by every CD-ROM ECC implementation: for each of
// majorCount output columns, walk minorCount samples spaced minorInc
// apart (wrapping modulo len(src)) accumulating two running parities.
func eccComputeBlock(src []byte, majorCount, minorCount, majorMult, minorInc int, dest []byte) {
	size := len(src)
	for major := 0; major < majorCount; major++ {
		index := (major/2)*majorMult + (major % 2)
		var a, b byte
		for minor := 0; minor < minorCount; minor++ {
			temp := src[index]
			index += minorInc
			if index >= size {
				index -= size
			}
			a ^= temp
			b ^= temp
			a = eccFLUT[a]
		}
		a = eccBLUT[eccFLUT[a]^b]
		dest[major] = a
		dest[major+majorCount] = a ^ b
	}
}

// eccGenerate lays down the 172-byte P-parity and 104-byte Q-parity
// fields at buf[2076:2352], computed over the 2064-byte header+data+EDC
// region buf[12:2076]. Layout is identical for Mode 1 and Mode 2 Form 1
// sectors (spec §4.1.4); Mode 2 Form 2 sectors carry an EDC only.
func eccGenerate(buf []byte) {
	src := buf[12:2076]
	eccComputeBlock(src, 86, 24, 2, 86, buf[2076:2248])
	eccComputeBlock(src, 52, 43, 86, 88, buf[2248:2352])
}
