package model

// Settings is the process-wide runtime configuration, loaded once at boot
// and written through to storage on save.
type Settings struct {
	Theme                    string  `json:"theme"`
	RecognitionLanguage      string  `json:"recognitionLanguage"`
	VoiceTimeoutMS           int     `json:"voiceTimeoutMs"`
	MaxAlternatives          int     `json:"maxAlternatives"`
	AutoConfirmMinConfidence float64 `json:"autoConfirmMinConfidence"`
	AutoPriceRefresh         bool    `json:"autoPriceRefresh"`
	SessionAutoSave          bool    `json:"sessionAutoSave"`
	AutoConfirmBestMatch     bool    `json:"autoConfirmBestMatch"`
	ExtractRarity            bool    `json:"extractRarity"`
	ExtractArtVariant        bool    `json:"extractArtVariant"`
	ContinuousRecognition    bool    `json:"continuousRecognition"`
}

// DefaultSettings returns the settings used before any are persisted.
func DefaultSettings() Settings {
	return Settings{
		Theme:                    "dark",
		RecognitionLanguage:      "en-US",
		VoiceTimeoutMS:           5000,
		MaxAlternatives:          3,
		AutoConfirmMinConfidence: 85,
		AutoPriceRefresh:         false,
		SessionAutoSave:          true,
		AutoConfirmBestMatch:     false,
		ExtractRarity:            true,
		ExtractArtVariant:        true,
		ContinuousRecognition:    false,
	}
}

// Normalize clamps out-of-range settings values back to usable defaults.
func (s *Settings) Normalize() {
	if s.VoiceTimeoutMS <= 0 {
		s.VoiceTimeoutMS = 5000
	}
	if s.MaxAlternatives <= 0 {
		s.MaxAlternatives = 3
	}
	if s.AutoConfirmMinConfidence < 0 || s.AutoConfirmMinConfidence > 100 {
		s.AutoConfirmMinConfidence = 85
	}
	if s.RecognitionLanguage == "" {
		s.RecognitionLanguage = "en-US"
	}
}
