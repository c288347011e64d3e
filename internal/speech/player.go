package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

// Compile-time interface check.
var _ domain.AudioPlayer = (*Player)(nil)

// pollInterval is how often Play checks whether playback ended.
const pollInterval = 10 * time.Millisecond

// Player plays 16-bit PCM WAV audio through the system output via oto.
type Player struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
	log        *logger.Logger

	mu     sync.Mutex
	active *oto.Player
	stop   chan struct{}
}

// NewPlayer opens the audio device. It fails when no device is available;
// callers treat that as "speech unavailable", not as fatal.
func NewPlayer(sampleRate, channels int, log *logger.Logger) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("opening audio device: %w", err)
	}
	<-ready

	log.Debug("player: audio device ready (rate=%d, channels=%d)", sampleRate, channels)
	return &Player{ctx: ctx, sampleRate: sampleRate, channels: channels, log: log}, nil
}

// Play blocks until the clip finishes, ctx is done or Stop is called.
// Audio whose format does not match the device is rejected rather than
// played at the wrong speed.
func (p *Player) Play(ctx context.Context, audio []byte) error {
	clip, err := decodeWAV(audio)
	if err != nil {
		return err
	}
	if clip.sampleRate != p.sampleRate || clip.channels != p.channels || clip.bitDepth != BitDepth {
		return fmt.Errorf("unsupported wav format %d Hz/%d ch/%d bit (device is %d Hz/%d ch/%d bit)",
			clip.sampleRate, clip.channels, clip.bitDepth, p.sampleRate, p.channels, BitDepth)
	}

	player := p.ctx.NewPlayer(bytes.NewReader(clip.pcm))
	stop := make(chan struct{})

	p.mu.Lock()
	p.active = player
	p.stop = stop
	p.mu.Unlock()

	// A cancel that landed before registration would otherwise be lost.
	if ctx.Err() == nil {
		player.Play()
	}
	p.log.Debug("player: playing %d bytes of PCM", len(clip.pcm))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
wait:
	for player.IsPlaying() {
		select {
		case <-stop:
			player.Pause()
			break wait
		case <-ctx.Done():
			player.Pause()
			break wait
		case <-ticker.C:
		}
	}

	p.mu.Lock()
	if p.active == player {
		p.active = nil
		p.stop = nil
	}
	p.mu.Unlock()

	return player.Close()
}

// Stop interrupts the clip that is playing, if any. Safe to call
// concurrently and when idle.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
		p.log.Debug("player: interrupted")
	}
}

// ── WAV decoding ─────────────────────────────────────────────────

type wavClip struct {
	sampleRate int
	channels   int
	bitDepth   int
	pcm        []byte
}

// decodeWAV walks the RIFF chunks and returns the fmt parameters and the
// raw PCM of the data chunk.
func decodeWAV(wav []byte) (*wavClip, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a WAV file")
	}

	clip := &wavClip{}
	haveFmt := false

	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		start := pos + 8
		end := start + size
		if end > len(wav) {
			end = len(wav)
		}

		switch id {
		case "fmt ":
			if end-start < 16 {
				return nil, errors.New("wav fmt chunk too short")
			}
			f := wav[start:end]
			clip.channels = int(binary.LittleEndian.Uint16(f[2:4]))
			clip.sampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			clip.bitDepth = int(binary.LittleEndian.Uint16(f[14:16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("wav data chunk before fmt chunk")
			}
			clip.pcm = wav[start:end]
			return clip, nil
		}

		pos = start + size
		if size%2 != 0 {
			pos++
		}
	}
	return nil, errors.New("wav data chunk not found")
}
