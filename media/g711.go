package media

// G.711 µ-law, the PCMU payload carried by call connections.
const (
	ulawBias = 0x84
	ulawClip = 32635
)

func EncodeSample(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func DecodeSample(u byte) int16 {
	u = ^u
	exponent := int(u>>4) & 0x07
	mantissa := int(u & 0x0F)
	s := ((mantissa << 3) + ulawBias) << exponent
	s -= ulawBias
	if u&0x80 != 0 {
		return int16(-s)
	}
	return int16(s)
}

func EncodeFrame(f Frame) []byte {
	out := make([]byte, len(f))
	for i, s := range f {
		out[i] = EncodeSample(s)
	}
	return out
}

func DecodeFrame(payload []byte) Frame {
	out := make(Frame, len(payload))
	for i, b := range payload {
		out[i] = DecodeSample(b)
	}
	return out
}
