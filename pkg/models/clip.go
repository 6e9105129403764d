package models

// AudioClip represents an encoded audio blob captured from the host media or
// the user's microphone. Clips are session-scoped; StorageKey/SourceURL are
// transient handles released when the session closes.
type AudioClip struct {
	Data       []byte `json:"-"`
	MimeType   string `json:"mime_type"`
	StorageKey string `json:"storage_key,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
}

// DecodedAudio holds mono PCM samples decoded from an AudioClip. Samples are
// float amplitudes in [-1, 1]. Derived on demand, never mutated in place.
type DecodedAudio struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the decoded duration in seconds.
func (d *DecodedAudio) Duration() float64 {
	if d.SampleRate <= 0 {
		return 0
	}
	return float64(len(d.Samples)) / float64(d.SampleRate)
}
