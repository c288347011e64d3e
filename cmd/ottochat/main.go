// OttoChat is a terminal client for a conversational assistant backend.
//
// Usage:
//
//	ottochat [--config file] [--verbose] [--quiet] [--no-speech]
//	ottochat ask <text>
//	ottochat sessions list|show|delete|rename
//	ottochat transcribe <file.wav>
package main

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hammamikhairi/ottochat/internal/api"
	"github.com/hammamikhairi/ottochat/internal/auth"
	"github.com/hammamikhairi/ottochat/internal/config"
	"github.com/hammamikhairi/ottochat/internal/engine"
	"github.com/hammamikhairi/ottochat/internal/logger"
	"github.com/hammamikhairi/ottochat/internal/request"
	"github.com/hammamikhairi/ottochat/internal/session"
	"github.com/hammamikhairi/ottochat/internal/speech"
	"github.com/hammamikhairi/ottochat/internal/transcript"
)

// flags are the persistent command-line options.
type flags struct {
	configPath string
	verbose    bool
	quiet      bool
	logFile    string
	noSpeech   bool
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "ottochat",
		Short:        "Chat with the assistant from your terminal",
		Version:      "1.0",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", config.DefaultPath(), "path to the YAML config file")
	pf.BoolVar(&f.verbose, "verbose", false, "enable verbose/debug logging")
	pf.BoolVar(&f.quiet, "quiet", false, "disable all logging")
	pf.StringVar(&f.logFile, "log-file", "", "file to write logs to (use \"stderr\" to log to console)")
	pf.BoolVar(&f.noSpeech, "no-speech", false, "disable spoken replies even if enabled in config")

	root.AddCommand(newAskCmd(f))
	root.AddCommand(newSessionsCmd(f))
	root.AddCommand(newTranscribeCmd(f))
	return root
}

// ── Wiring ───────────────────────────────────────────────────────

// deps is the wired object graph shared by every command.
type deps struct {
	cfg      *config.Config
	log      *logger.Logger
	client   *api.Client
	store    *transcript.Store
	sessions *session.Manager
	engine   *engine.Engine
	speech   *speech.Coordinator
	closeLog func()
}

func (d *deps) Close() {
	if d.closeLog != nil {
		d.closeLog()
	}
}

// wire builds the object graph. Speech is attached only when withSpeech
// is set and an audio device can be opened.
func wire(ctx context.Context, f *flags, withSpeech bool) (*deps, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	if f.verbose {
		level = logger.LevelVerbose
	}
	if f.quiet {
		level = logger.LevelOff
	}

	path := cfg.Logging.File
	if f.logFile != "" {
		path = f.logFile
	}
	logOut, closeLog := openLog(path)

	// Route the standard log package to the same place so third-party
	// output does not spill into the terminal UI.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(level, logOut)

	tokens := auth.Chain{
		auth.NewStatic(cfg.Auth.Token),
		auth.NewFile(tokenPath(cfg)),
		auth.Env(auth.EnvToken),
	}

	client := api.New(cfg.Backend.BaseURL, tokens, log.With("api"),
		api.WithRequestTimeout(cfg.Backend.RequestTimeout),
	)
	store := transcript.New(log.With("transcript"))
	requests := request.New(client, log.With("request"), request.WithTimeout(cfg.Backend.ChatTimeout))
	sessions := session.New(client, tokens, store, log.With("session"))

	d := &deps{
		cfg:      cfg,
		log:      log,
		client:   client,
		store:    store,
		sessions: sessions,
		closeLog: closeLog,
	}

	opts := []engine.Option{engine.WithTranscriber(client)}
	if withSpeech && !f.noSpeech {
		if coord := wireSpeech(ctx, cfg, client, store, log.With("speech")); coord != nil {
			d.speech = coord
			opts = append(opts, engine.WithSpeech(coord))
		}
	}
	d.engine = engine.New(store, requests, sessions, log.With("engine"), opts...)

	log.Info("ottochat started (backend=%s, authenticated=%t)", cfg.Backend.BaseURL, sessions.Authenticated())
	return d, nil
}

func wireSpeech(ctx context.Context, cfg *config.Config, client *api.Client, store *transcript.Store, log *logger.Logger) *speech.Coordinator {
	player, err := speech.NewPlayer(cfg.Speech.SampleRate, cfg.Speech.Channels, log)
	if err != nil {
		log.Error("audio player init failed, speech disabled: %v", err)
		return nil
	}

	cache := speech.NewAudioCache(cfg.Backend.BaseURL, log,
		speech.WithDiskDir(cfg.Speech.CacheDir, cfg.Speech.DiskCache),
	)
	speaker := speech.NewSpeaker(client, player, log,
		speech.WithChunkSize(cfg.Speech.ChunkSize),
		speech.WithCache(cache),
	)
	speaker.Start(ctx)

	coord := speech.NewCoordinator(store, speaker, cfg.Speech.Enabled, log)
	coord.Run(ctx)
	log.Info("speech ready (enabled=%t, %d Hz, %d ch)", cfg.Speech.Enabled, cfg.Speech.SampleRate, cfg.Speech.Channels)
	return coord
}

func tokenPath(cfg *config.Config) string {
	if cfg.Auth.TokenFile != "" {
		return cfg.Auth.TokenFile
	}
	return auth.DefaultTokenPath()
}

// openLog directs logs to a file by default so the terminal UI stays
// clean. "stderr" logs to the console.
func openLog(path string) (io.Writer, func()) {
	if path == "" || path == "stderr" {
		return os.Stderr, func() {}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		return os.Stderr, func() {}
	}
	return f, func() { f.Close() }
}
