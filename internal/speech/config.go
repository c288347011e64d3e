// Package speech is the speech-output side channel: it watches the
// transcript for new assistant messages, synthesizes them through the
// backend and plays the audio. Nothing here ever blocks the send path.
package speech

// Audio format the backend returns and the player expects.
const (
	DefaultSampleRate   = 24000
	DefaultChannelCount = 1
	BitDepth            = 16
)

// DefaultChunkSize is the approximate character count per synthesis request.
const DefaultChunkSize = 200

// defaultMaxCacheEntries bounds the in-memory audio cache.
const defaultMaxCacheEntries = 256
