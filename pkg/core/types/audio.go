package types

// AudioSegment is one finished utterance: an opaque encoded byte buffer plus
// its declared content type. A segment is produced once per completed
// recording and consumed exactly once by transcription.
type AudioSegment struct {
	Data     []byte
	MIMEType string
}

// Empty reports whether the segment carries no audio.
func (s AudioSegment) Empty() bool {
	return len(s.Data) == 0
}
