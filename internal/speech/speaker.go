package speech

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

// SpeakerOption configures the Speaker.
type SpeakerOption func(*Speaker)

// WithChunkSize sets the approximate character count per synthesis
// request. Longer text is split at sentence boundaries and the chunks are
// synthesized in parallel. Zero disables chunking.
func WithChunkSize(n int) SpeakerOption {
	return func(s *Speaker) { s.chunkSize = n }
}

// WithCache sets the audio cache. Without one every utterance is
// synthesized.
func WithCache(c *AudioCache) SpeakerOption {
	return func(s *Speaker) { s.cache = c }
}

// utterance is a queued piece of text.
type utterance struct {
	text     string
	queuedAt time.Time
}

// Speaker serializes speech output: queue, chunk, synthesize in parallel,
// play in order. Only one utterance plays at a time.
type Speaker struct {
	synth     domain.Synthesizer
	player    domain.AudioPlayer
	cache     *AudioCache
	chunkSize int
	log       *logger.Logger

	mu          sync.Mutex
	queue       []utterance
	notify      chan struct{}
	speaking    bool
	interrupted bool
	epoch       uint64
	cancelPlay  context.CancelFunc
}

// NewSpeaker creates a speaker.
func NewSpeaker(synth domain.Synthesizer, player domain.AudioPlayer, log *logger.Logger, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		synth:     synth,
		player:    player,
		chunkSize: DefaultChunkSize,
		log:       log,
		notify:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Say queues text. Never blocks.
func (s *Speaker) Say(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, utterance{text: text, queuedAt: time.Now()})
	qLen := len(s.queue)
	s.mu.Unlock()

	s.log.Debug("speaker: queued (queue_len=%d): %s", qLen, truncate(text, 60))

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Interrupt stops playback, drops the queue and aborts any multi-chunk
// utterance between chunks.
func (s *Speaker) Interrupt() {
	s.mu.Lock()
	s.queue = nil
	s.interrupted = true
	s.epoch++
	if s.cancelPlay != nil {
		s.cancelPlay()
	}
	s.mu.Unlock()

	s.player.Stop()
	s.log.Debug("speaker: interrupted, queue cleared")
}

// IsSpeaking reports whether an utterance is being synthesized or played.
func (s *Speaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// QueueLen returns the number of pending utterances.
func (s *Speaker) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Start runs the processing loop until ctx is done. Non-blocking.
func (s *Speaker) Start(ctx context.Context) {
	go s.loop(ctx)
	s.log.Info("speaker started")
}

func (s *Speaker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.log.Info("speaker stopped")
			return
		case <-s.notify:
			s.drain(ctx)
		}
	}
}

func (s *Speaker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		u := s.queue[0]
		s.queue = s.queue[1:]
		s.interrupted = false
		s.speaking = true
		epoch := s.epoch
		playCtx, cancel := context.WithCancel(ctx)
		s.cancelPlay = cancel
		s.mu.Unlock()

		s.speak(playCtx, u, epoch)

		s.mu.Lock()
		cancel()
		s.cancelPlay = nil
		s.speaking = false
		s.mu.Unlock()
	}
}

func (s *Speaker) aborted(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted || s.epoch != epoch
}

// speak synthesizes all chunks of u in parallel and plays them in order.
// Failed or empty chunks are skipped.
func (s *Speaker) speak(ctx context.Context, u utterance, epoch uint64) {
	s.log.Debug("speaker: speaking (waited=%s): %s", time.Since(u.queuedAt).Round(time.Millisecond), truncate(u.text, 60))

	chunks := splitChunks(u.text, s.chunkSize)

	type result struct {
		idx   int
		audio []byte
		err   error
	}
	results := make(chan result, len(chunks))
	for i, chunk := range chunks {
		go func(idx int, text string) {
			audio, err := s.synthesize(ctx, text)
			results <- result{idx: idx, audio: audio, err: err}
		}(i, chunk)
	}

	slots := make([][]byte, len(chunks))
	for range chunks {
		r := <-results
		if r.err != nil {
			s.log.Error("speaker: chunk %d synthesis failed: %v", r.idx, r.err)
			continue
		}
		slots[r.idx] = r.audio
	}

	for i, audio := range slots {
		if len(audio) == 0 {
			s.log.Debug("speaker: chunk %d has nothing to play", i)
			continue
		}
		if ctx.Err() != nil || s.aborted(epoch) {
			s.log.Debug("speaker: playback aborted before chunk %d", i)
			return
		}
		if err := s.player.Play(ctx, audio); err != nil && ctx.Err() == nil {
			s.log.Error("speaker: chunk %d playback failed: %v", i, err)
		}
	}
}

func (s *Speaker) synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.cache != nil {
		if audio, ok := s.cache.Get(text); ok {
			return audio, nil
		}
	}
	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(text, audio)
	}
	return audio, nil
}

// ── Chunking ─────────────────────────────────────────────────────

// splitChunks groups sentences into chunks of roughly size characters.
// A single sentence longer than size becomes its own chunk.
func splitChunks(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if c := strings.TrimSpace(cur.String()); c != "" {
			chunks = append(chunks, c)
		}
		cur.Reset()
	}

	for _, sentence := range splitSentences(text) {
		if cur.Len() > 0 && cur.Len()+len(sentence) > size {
			flush()
		}
		cur.WriteString(sentence)
	}
	flush()
	return chunks
}

// splitSentences splits at . ! ? and line breaks, keeping the terminator
// and trailing whitespace with the sentence.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if !isSentenceEnd(runes[i]) {
			continue
		}
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
			cur.WriteRune(runes[i])
		}
		out = append(out, cur.String())
		cur.Reset()
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
