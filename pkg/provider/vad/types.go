package vad

// VADEvent is the gate decision for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// ActiveSamples is the number of samples that exceeded the threshold.
	ActiveSamples int
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun. The frame is written.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech. The frame is written.
	VADSpeechContinue

	// VADSpeechEnd indicates the utterance has finished. The run stops and
	// the frame is not written.
	VADSpeechEnd

	// VADSilence indicates no speech has been detected yet. The frame is
	// dropped.
	VADSilence
)

// String returns the event type name.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// Writes reports whether a frame classified as t belongs in the output.
func (t VADEventType) Writes() bool {
	return t == VADSpeechStart || t == VADSpeechContinue
}
