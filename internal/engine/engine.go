package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"studybench/engine/internal/anthropic"
	"studybench/engine/internal/appdirs"
	"studybench/engine/internal/assistant"
	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/llm"
	"studybench/engine/internal/logging"
	"studybench/engine/internal/openai"
	"studybench/engine/internal/secrets"
	"studybench/engine/internal/settings"
	"studybench/engine/internal/store"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

// DefaultMaxRounds bounds assistant tool-calling rounds per user turn.
const DefaultMaxRounds = 8

type Notifier func(method string, params any)

// TransportFactory builds the LLM transport for a provider. BaseURL
// comes from provider settings and may be empty.
type TransportFactory func(providerID, baseURL string) llm.Transport

type runHandle struct {
	runID  string
	cancel context.CancelFunc
}

type Engine struct {
	dataDir   string
	settings  *settings.Store
	secrets   *secrets.Store
	store     *store.Store
	bridge    *assistant.Bridge
	proposals *assistant.Proposals
	transport TransportFactory
	notify    Notifier
	logger    *slog.Logger
	now       func() time.Time
	maxRounds int

	runMu       sync.Mutex
	runs        map[string]runHandle
	transcripts map[string][]llm.ChatMessage
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithDataDir(dir string) Option {
	return func(e *Engine) {
		e.dataDir = dir
	}
}

func WithTransportFactory(factory TransportFactory) Option {
	return func(e *Engine) {
		if factory != nil {
			e.transport = factory
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithMaxRounds(rounds int) Option {
	return func(e *Engine) {
		if rounds > 0 {
			e.maxRounds = rounds
		}
	}
}

func defaultTransportFactory(providerID, baseURL string) llm.Transport {
	switch providerID {
	case settings.ProviderAnthropic:
		return anthropic.NewClient(baseURL)
	default:
		return openai.NewClient(baseURL)
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{
		logger:      logging.Nop(),
		transport:   defaultTransportFactory,
		now:         func() time.Time { return time.Now().UTC() },
		maxRounds:   DefaultMaxRounds,
		runs:        map[string]runHandle{},
		transcripts: map[string][]llm.ChatMessage{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.dataDir == "" {
		dataDir, err := appdirs.DataDir()
		if err != nil {
			return nil, err
		}
		engine.dataDir = dataDir
	}
	if err := os.MkdirAll(engine.dataDir, 0o755); err != nil {
		return nil, err
	}
	engine.settings = settings.NewStore(filepath.Join(engine.dataDir, "settings.json"))
	engine.secrets = secrets.NewStore(
		filepath.Join(engine.dataDir, "secrets.enc"),
		filepath.Join(engine.dataDir, "master.key"),
	)
	engine.store = store.New(appdirs.DatabasePath(engine.dataDir))
	if err := engine.store.Init(context.Background()); err != nil {
		return nil, err
	}
	engine.bridge = assistant.NewBridge()
	engine.bridge.OnChange(func(state assistant.EditorState) {
		engine.notifyUI("EditorFieldsChanged", state)
	})
	engine.bridge.OnFieldDiff(func(fieldDiff assistant.FieldDiff) {
		engine.notifyUI("EditorFieldDiff", fieldDiff)
	})
	engine.proposals = assistant.NewProposals()
	engine.proposals.OnPropose(func(proposal assistant.Proposal) {
		engine.notifyUI("AssistantCardsProposed", proposal)
	})
	return engine, nil
}

func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notify = notify
}

func (e *Engine) notifyUI(method string, params any) {
	if e.notify != nil {
		e.notify(method, params)
	}
}

type engineInfoResult struct {
	EngineVersion string `json:"engine_version"`
	APIVersion    string `json:"api_version"`
	DataDir       string `json:"data_dir"`
}

func (e *Engine) EngineGetInfo(_ context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return engineInfoResult{
		EngineVersion: EngineVersion,
		APIVersion:    APIVersion,
		DataDir:       e.dataDir,
	}, nil
}

func parseParams(phase string, params json.RawMessage, out any) *errinfo.ErrorInfo {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return errinfo.ValidationFailed(phase, "invalid params: "+err.Error())
	}
	return nil
}
