package embedding

import (
	"context"
	"log"
	"strings"
	"time"

	"termsearch/internal/domain"
	"termsearch/internal/embedding/hashed"
	"termsearch/internal/embedding/llama"
	"termsearch/internal/embedding/openai"
)

// Kind names an embedding provider variant.
type Kind string

const (
	KindLlama  Kind = "llama"
	KindOpenAI Kind = "openai"
	KindFake   Kind = "fake"
)

// DefaultHealthTimeout bounds the probe run before a remote provider is used.
const DefaultHealthTimeout = 2 * time.Second

// Config selects and configures the provider built by New.
type Config struct {
	Kind          Kind
	Dimension     int
	HealthTimeout time.Duration

	Llama  llama.Config
	OpenAI openai.Config
}

type pinger interface {
	Ping(ctx context.Context) error
}

// New builds the configured provider. Remote providers are probed first; when
// construction or the probe fails the deterministic hashed provider is
// returned instead, so New always yields a usable Embedder.
func New(ctx context.Context, cfg Config) domain.Embedder {
	fallback := func() domain.Embedder { return hashed.NewEmbedder(cfg.Dimension) }

	var (
		remote domain.Embedder
		err    error
	)
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case KindFake:
		return fallback()
	case KindLlama:
		if cfg.Llama.DefaultDimension == 0 {
			cfg.Llama.DefaultDimension = cfg.Dimension
		}
		remote, err = llama.NewClient(cfg.Llama)
	case KindOpenAI:
		if cfg.OpenAI.Dimension == 0 {
			cfg.OpenAI.Dimension = cfg.Dimension
		}
		remote, err = openai.NewClient(cfg.OpenAI)
	default:
		log.Printf("embedding: unknown provider %q, falling back to fake embeddings", cfg.Kind)
		return fallback()
	}
	if err != nil {
		log.Printf("embedding: %s provider unavailable: %v; falling back to fake embeddings", cfg.Kind, err)
		return fallback()
	}

	timeout := cfg.HealthTimeout
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	if p, ok := remote.(pinger); ok {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.Ping(pctx); err != nil {
			log.Printf("embedding: %s provider failed health check: %v; falling back to fake embeddings", cfg.Kind, err)
			return fallback()
		}
	}
	log.Printf("embedding: using %s provider", remote.Name())
	return remote
}
