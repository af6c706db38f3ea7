package audio

// Int16Samples decodes little-endian int16 PCM into samples. A trailing odd
// byte is ignored.
func Int16Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// Int16Bytes encodes samples as little-endian int16 PCM.
func Int16Bytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// CountAbove16 returns how many int16 samples in pcm have an absolute value
// strictly greater than threshold. The magnitude of -32768 is 32768.
func CountAbove16(pcm []byte, threshold int) int {
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int(int16(pcm[i]) | int16(pcm[i+1])<<8)
		if s < 0 {
			s = -s
		}
		if s > threshold {
			n++
		}
	}
	return n
}

// PadFrame returns a copy of frame whose payload is zero-extended to
// samples samples per channel. Frames that are already long enough are
// returned unchanged.
func PadFrame(frame AudioFrame, samples int) AudioFrame {
	want := samples * frame.Format().BlockAlign()
	if len(frame.Data) >= want {
		return frame
	}
	data := make([]byte, want)
	copy(data, frame.Data)
	frame.Data = data
	return frame
}

// TrimLeading returns a copy of frame without its first samples samples per
// channel. It is used to strip per-frame header artefacts some source
// adapters prepend to the PCM payload.
func TrimLeading(frame AudioFrame, samples int) AudioFrame {
	if samples <= 0 {
		return frame
	}
	skip := samples * frame.Format().BlockAlign()
	if skip >= len(frame.Data) {
		frame.Data = nil
		return frame
	}
	frame.Data = frame.Data[skip:]
	return frame
}
