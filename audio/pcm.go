package audio

import "encoding/binary"

// amplify scales samples by gain with clipping and packs them as S16LE.
func amplify(buf []int16, gain int32) []byte {
	data := make([]byte, len(buf)*2)
	for i, s := range buf {
		v := int32(s) * gain
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v)))
	}
	return data
}
