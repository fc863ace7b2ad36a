package types

// VoiceProfile identifies a voice on a speech synthesis backend.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (VOICEVOX style id,
	// ElevenLabs voice id).
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Provider is the name of the backend the voice belongs to.
	Provider string `json:"provider"`

	// Metadata holds provider-specific extras (speaker uuid, style name).
	Metadata map[string]string `json:"metadata,omitempty"`
}
