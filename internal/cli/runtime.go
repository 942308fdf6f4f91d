package cli

import (
	"context"
	"fmt"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/events"
	"github.com/castaldi/frank/internal/intent"
	"github.com/castaldi/frank/internal/lifecycle"
	"github.com/castaldi/frank/internal/llm"
	"github.com/castaldi/frank/internal/routing"
	"github.com/castaldi/frank/internal/store"
	"github.com/castaldi/frank/internal/tools"
)

// runtime is the assembled core: everything a transport needs to serve turns.
type runtime struct {
	cfg      config.Config
	catalog  *catalog.Registry
	router   *routing.Router
	bus      *events.Bus
	db       *store.DB
	trans    *store.Transcripts
	detector *intent.Detector
}

func (r *runtime) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// buildRuntime wires the core from configuration. withStore controls
// whether transcripts and the event log are persisted.
func buildRuntime(cfg config.Config, withStore bool) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	registry := llm.NewRegistryFromConfig(cfg.LLM, log)
	client, err := registry.Resolve(cfg.LLM.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolving completion provider: %w", err)
	}

	if len(cfg.LLM.Fallbacks) > 0 {
		var fallbacks []llm.Client
		for _, name := range cfg.LLM.Fallbacks {
			fb, err := registry.Resolve(name)
			if err != nil {
				log.Warn().Str("provider", name).Msg("fallback provider unavailable, skipping")
				continue
			}
			fallbacks = append(fallbacks, fb)
		}
		if len(fallbacks) > 0 {
			client = llm.NewFailoverClient(client, fallbacks, log)
		}
	}

	rt.bus = events.NewBus(log)
	rt.bus.Subscribe("log", events.LogSink(log))

	if withStore {
		db, err := store.Open(cfg.Store.Path, log)
		if err != nil {
			return nil, err
		}
		rt.db = db
		rt.trans = store.NewTranscripts(db)
		rt.bus.Subscribe("store", store.NewEventLog(db, log).Handler())
	}

	rt.catalog = catalog.NewRegistry(log)
	if err := tools.RegisterBuiltins(rt.catalog); err != nil {
		if rt.db != nil {
			rt.db.Close()
		}
		return nil, err
	}

	var intentClient llm.Client
	if cfg.Intent.LLMEnabled() {
		intentClient = client
	}
	rt.detector = intent.NewDetector(intentClient, cfg.Intent, log)

	responder := routing.NewResponder(client, cfg.Agent, cfg.LLM.MaxTokens, log)

	rt.router = routing.NewRouter(routing.Options{
		Detector:  rt.detector,
		Catalog:   rt.catalog,
		Responder: responder,
		Emitter:   rt.bus,
		Questions: questionGenerator(client, cfg.Agent),
	}, log)

	return rt, nil
}

// questionGenerator asks the model for a natural clarification question.
// Session code falls back to templates when it fails.
func questionGenerator(client llm.Client, agent config.AgentConfig) lifecycle.QuestionFunc {
	name := agent.Name
	if name == "" {
		name = "Frank"
	}
	return func(ctx context.Context, toolName, param string) (string, error) {
		resp, err := client.Complete(ctx, llm.CompletionRequest{
			System: fmt.Sprintf("Sei %s, l'assistente di bordo di un camper. Formula una sola domanda breve e naturale in italiano.", name),
			Messages: []llm.Message{{
				Role: llm.RoleUser,
				Content: fmt.Sprintf(
					"Per usare lo strumento %s manca il parametro %q. Chiedi all'utente questo dato, con una sola domanda.",
					toolName, param),
			}},
			MaxTokens: 64,
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}
