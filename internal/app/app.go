// Package app wires configuration, storage, collaborators, and the
// reconciliation orchestrator into one runnable application.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	asrgoogle "github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr/google"
	asrmock "github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr/mock"
	asropenai "github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr/openai"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/config"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/diarization"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/diarization/pyannote"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/events"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/formatter"
	fmtopenai "github.com/Rachel-Huang77/Fast-Accent-Translator/internal/formatter/openai"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/models"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/logging"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/reconcile"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/store/gormstore"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Orchestrator *reconcile.Orchestrator
	Notifier     *events.Notifier
	Consumer     *events.Consumer
	Observe      *observability.Server

	closers []func() error
}

// New constructs the application from configuration: logging, storage,
// ASR/diarization/formatting collaborators, eventing, and the
// orchestrator on top of them.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	segments, err := gormstore.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	transcriber, err := a.buildTranscriber(ctx)
	if err != nil {
		return nil, err
	}

	var analyzer diarization.Analyzer
	if cfg.EnableDiarization {
		analyzer = pyannote.NewClient(cfg.PyannoteURL)
	}

	var fmtr formatter.Formatter
	if cfg.EnableFormatting {
		fmtr = fmtopenai.NewClient(cfg.OpenAIAPIKey, cfg.GPTModel)
	}

	var gate *reconcile.Detector
	if cfg.EnableQualityGate {
		gate = reconcile.NewDetector()
	}

	a.Notifier = events.NewNotifier(&events.NotifierConfig{
		Enabled: cfg.Kafka.Enabled,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.TopicUpdated,
	})
	a.closers = append(a.closers, a.Notifier.Close)

	a.Orchestrator = reconcile.NewOrchestrator(
		transcriber,
		analyzer,
		fmtr,
		segments,
		a.Notifier,
		gate,
		reconcile.Config{
			EnableDiarization: cfg.EnableDiarization,
			EnableFormatting:  cfg.EnableFormatting,
			EnableQualityGate: cfg.EnableQualityGate,
			DefaultSpeakerID:  cfg.DefaultSpeakerID,
		},
		logging.WithComponent("orchestrator"),
	)

	if cfg.Kafka.Enabled {
		a.Consumer = events.NewConsumer(events.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.TopicStops,
			GroupID: cfg.Kafka.GroupID,
		}, a.handleStop)
		a.closers = append(a.closers, a.Consumer.Close)
	}

	a.Observe = observability.NewServer(cfg.ObservabilityAddr)

	a.Logger.Info().
		Str("asrProvider", cfg.ASRProvider).
		Bool("diarization", cfg.EnableDiarization).
		Bool("formatting", cfg.EnableFormatting).
		Bool("qualityGate", cfg.EnableQualityGate).
		Msg("Application created")

	return a, nil
}

func (a *Application) buildTranscriber(ctx context.Context) (asr.Transcriber, error) {
	switch a.Cfg.ASRProvider {
	case "openai":
		return asropenai.NewAdapter(a.Cfg.OpenAIAPIKey, a.Cfg.WhisperModel), nil
	case "google":
		adapter, err := asrgoogle.NewAdapter(ctx, 16000)
		if err != nil {
			return nil, fmt.Errorf("google transcriber: %w", err)
		}
		a.closers = append(a.closers, adapter.Close)
		return adapter, nil
	case "mock":
		return asrmock.NewAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown ASR provider %q", a.Cfg.ASRProvider)
	}
}

// handleStop turns one stop event into one reconciliation pass.
func (a *Application) handleStop(ctx context.Context, event models.RecordingStopped) {
	ses := reconcile.NewSession(event.ConversationID, event.AudioPath)
	ses.Language = event.Language
	if ses.Language == "" {
		ses.Language = a.Cfg.Language
	}
	ses.LiveHintText = event.LiveHintText
	if event.StartSeq >= 0 {
		ses.StartSeq = event.StartSeq
	}

	if err := a.Orchestrator.Run(ctx, ses); err != nil {
		logger := logging.WithPass(event.ConversationID, ses.PassID)
		logger.Error().Err(err).Msg("Reconciliation pass failed")
	}
}

// Start launches the observability server and, when configured, the
// stop-event consumer.
func (a *Application) Start(ctx context.Context) {
	a.StartupTime = time.Now().UTC()
	a.Observe.Start()

	if a.Consumer != nil {
		go func() {
			if err := a.Consumer.Run(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("Stop event consumer exited")
			}
		}()
	}

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Transcript reconciler started")
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Msg("Transcript reconciler shutting down")

	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.Logger.Error().Err(err).Msg("Error closing component")
		}
	}
	if err := a.Observe.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Error stopping observability server")
	}
}
