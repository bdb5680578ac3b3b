package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"termsearch/internal/checkpoint"
	"termsearch/internal/chunker"
	"termsearch/internal/config"
	"termsearch/internal/domain"
	"termsearch/internal/embedding"
	"termsearch/internal/progress"
	"termsearch/internal/service"
	"termsearch/internal/summarizer"
	"termsearch/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		query   string
		topK    int
		rebuild bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/termsearch/config.yaml if not provided)")
	flag.StringVar(&query, "query", "", "Run a single query, print the hits and exit")
	flag.IntVar(&topK, "top", 0, "Number of hits to return (defaults to search.top_k)")
	flag.BoolVar(&rebuild, "rebuild", false, "Ignore the checkpoint and rebuild from the source")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: termsearch [--config=config.yaml] [--rebuild] [--query=\"...\" [--top=N]] [file-or-glob]")
		flag.PrintDefaults()
	}
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if topK <= 0 {
		topK = cfg.Search.TopK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Assemble components
	emb := embedding.New(ctx, cfg.EmbeddingConfig())

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "marker", "":
		ch = chunker.NewMarkerChunker(cfg.Chunker.Delimiter, cfg.Chunker.DefaultTitle)
	default:
		log.Fatalf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	default:
		log.Fatalf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	store := checkpoint.NewStore(cfg.Index.CacheDir, cfg.Index.Name)
	engine := service.NewEngine(ch, emb, store, sum)
	engine.SetProgress(progress.New(progress.DefaultEnabled(), "encoding sections"))

	source := strings.TrimSpace(flag.Arg(0))
	if err := startup(ctx, engine, source, cfg.Index.DefaultSource, rebuild); err != nil {
		log.Fatalf("build failed: %v", err)
	}

	if query != "" {
		if err := printHits(ctx, engine, query, topK); err != nil {
			log.Fatal(err)
		}
		return
	}

	logFile, err := setupLogging(cfg.Index.CacheDir)
	if err != nil {
		log.Printf("warning: logging to stderr: %v", err)
	} else {
		defer logFile.Close()
	}

	m := newInteractiveModel(engine, tui.Options{TopK: topK, MaxOverview: cfg.Summarizer.MaxSections})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}

// startup restores the checkpoint, or builds from the given source, or from
// the default source when it exists. Otherwise the engine stays unbuilt.
func startup(ctx context.Context, engine *service.Engine, source, defaultSource string, rebuild bool) error {
	if !rebuild && engine.LoadCheckpoint() {
		return nil
	}
	if source == "" {
		if defaultSource == "" {
			return nil
		}
		if _, err := os.Stat(defaultSource); err != nil {
			log.Printf("no source given and %s not found; starting without an index", defaultSource)
			return nil
		}
		source = defaultSource
	}
	err := engine.BuildFromFile(ctx, source)
	if errors.Is(err, service.ErrNoSections) {
		log.Printf("warning: %s produced no sections", source)
		return nil
	}
	return err
}

// newInteractiveModel detaches the stderr progress bar, which would draw
// underneath the alt screen during /open and /text builds.
func newInteractiveModel(engine *service.Engine, opts tui.Options) tui.Model {
	engine.SetProgress(nil)
	return tui.New(engine, opts)
}

func printHits(ctx context.Context, engine *service.Engine, query string, k int) error {
	hits, err := engine.Search(ctx, query, k)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, h := range hits {
		fmt.Printf("%d. [%s] score=%.3f span=%d:%d\n   %s\n", i+1, h.Section.Title, h.Score, h.Section.StartIdx, h.Section.EndIdx, h.Section.Content)
	}
	return nil
}
