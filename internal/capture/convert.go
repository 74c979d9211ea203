package capture

// ScaleTo8Bit narrows bitDepth-bit samples to bytes by dropping the low
// (bitDepth-8) bits. Samples of 8 bits or fewer are copied unchanged.
func ScaleTo8Bit(samples []uint16, bitDepth int) []byte {
	out := make([]byte, len(samples))

	shift := bitDepth - 8
	if shift <= 0 {
		for i, s := range samples {
			out[i] = byte(s)
		}
		return out
	}

	for i, s := range samples {
		out[i] = byte(s >> shift)
	}
	return out
}
