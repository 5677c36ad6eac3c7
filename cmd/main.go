package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chapter-tutor/internal/chunker"
	"chapter-tutor/internal/config"
	"chapter-tutor/internal/embedding"
	"chapter-tutor/internal/extract"
	"chapter-tutor/internal/helper"
	"chapter-tutor/internal/llmservice"
	"chapter-tutor/internal/outline"
	"chapter-tutor/internal/quiz"
	"chapter-tutor/internal/rag"
	"chapter-tutor/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	ingest := flag.Bool("ingest", false, "Rebuild the knowledge store from the chapter PDF")
	textFile := flag.String("text", "", "Rebuild the knowledge store from a pre-extracted text file")
	query := flag.String("query", "", "Question to answer from the chapter")
	quizTopic := flag.String("quiz", "", "Generate one quiz question about the given topic")
	outlineFlag := flag.Bool("outline", false, "Generate the chapter knowledge outline")
	htmlOut := flag.Bool("html", false, "Render the outline as HTML instead of markdown")
	stats := flag.Bool("stats", false, "Show knowledge store statistics")
	clear := flag.Bool("clear", false, "Empty the knowledge store")
	exportFlag := flag.Bool("export", false, "Write an encrypted snapshot of the knowledge store")
	importFlag := flag.Bool("import", false, "Restore the knowledge store from a snapshot")
	dryRun := flag.Bool("dry-run", false, "Chunk only, do not embed or save")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ctx := context.Background()

	switch {
	case *ingest:
		runIngest(ctx, cfg, "", *dryRun)
	case *textFile != "":
		runIngest(ctx, cfg, *textFile, *dryRun)
	case *query != "":
		runQuery(ctx, cfg, *query)
	case *quizTopic != "":
		runQuiz(ctx, cfg, *quizTopic)
	case *outlineFlag:
		runOutline(ctx, cfg, *htmlOut)
	case *stats:
		runStats(ctx, cfg)
	case *clear:
		runClear(ctx, cfg)
	case *exportFlag:
		runExport(ctx, cfg)
	case *importFlag:
		runImport(ctx, cfg)
	default:
		flag.Usage()
	}
}

func newStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	name := cfg.Chapter.CollectionName()
	switch cfg.Store.Backend {
	case "postgres":
		return vectorstore.NewPgStore(ctx, cfg.Store.DSN, cfg.Store.Password, name, cfg.Store.Debug)
	default:
		if err := helper.CreateFolder(cfg.Store.Path); err != nil {
			return nil, err
		}
		return vectorstore.NewChromemStore(cfg.Store.Path, name, cfg.Store.InMemory, cfg.Store.EncryptionKey)
	}
}

// newEngine wires the shared service handles. A missing generation
// credential only disables answer prose; a missing embedding credential
// disables everything that needs vectors, which the commands report.
func newEngine(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		if errors.Is(err, embedding.ErrNotConfigured) {
			return nil, fmt.Errorf("embedding service is not configured, set %s", cfg.EmbedLLM.KeyEnv)
		}
		return nil, err
	}

	generator, err := llmservice.NewClient(&cfg.ChatLLM, &cfg.Retry)
	if err != nil {
		if !errors.Is(err, llmservice.ErrNotConfigured) {
			return nil, err
		}
		log.Warn().Msg("generation service is not configured, answers will be disabled")
		generator = nil
	}

	if generator == nil {
		return rag.NewEngine(store, embedder, nil, cfg), nil
	}
	return rag.NewEngine(store, embedder, generator, cfg), nil
}

func runIngest(ctx context.Context, cfg *config.Config, textFile string, dryRun bool) {
	var (
		text string
		err  error
	)
	if textFile != "" {
		data, err := os.ReadFile(textFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Error reading text file")
		}
		text = string(data)
	} else {
		text, err = extract.New(&cfg.Chapter).ChapterText()
		if err != nil {
			log.Fatal().Err(err).Msg("Error extracting chapter text")
		}
	}

	if dryRun {
		ch := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.Chapter.Number, cfg.Chapter.Source)
		chunks := ch.Chunk(text, cfg.Chapter.StartPage)
		log.Info().Int("chunks", len(chunks)).Msg("Dry run, nothing saved")
		helper.PrettyPrint(chunks)
		return
	}

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building engine")
	}

	report, err := engine.Rebuild(ctx, text, cfg.Chapter.StartPage)
	if err != nil {
		if errors.Is(err, rag.ErrNothingToIndex) {
			log.Fatal().Msg("Chapter text produced no chunks, store left untouched")
		}
		log.Fatal().Err(err).Msg("Error rebuilding knowledge store")
	}
	log.Info().
		Str("run_id", report.RunID).
		Int("persisted", report.Persisted).
		Int("skipped", report.Skipped).
		Msg("Knowledge store rebuilt")
}

func runQuery(ctx context.Context, cfg *config.Config, question string) {
	engine, err := newEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building engine")
	}

	answer, err := engine.Ask(ctx, question)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering question")
	}

	fmt.Printf("Question:\n%s\n\n", question)
	fmt.Printf("Answer:\n%s\n\n", answer.Answer)
	fmt.Println("Sources:")
	for i, s := range answer.Sources {
		fmt.Printf("  [%d] PDF page %d / book page %d: %s\n", i+1, s.PDFPage, s.BookPage, s.Preview)
	}
}

func runQuiz(ctx context.Context, cfg *config.Config, topic string) {
	engine, err := newEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building engine")
	}
	generator := engine.Generator()
	if generator == nil {
		log.Fatal().Msg("Generation service is not configured, cannot generate quizzes")
	}

	results, err := engine.Search(ctx, topic, 3)
	if err != nil {
		log.Fatal().Err(err).Msg("Error retrieving quiz context")
	}
	if len(results) == 0 {
		log.Fatal().Msg("Knowledge store is empty, ingest the chapter first")
	}
	var texts []string
	for _, r := range results {
		texts = append(texts, r.Text)
	}

	item, err := quiz.NewGenerator(generator).Generate(ctx, strings.Join(texts, "\n\n"))
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating quiz")
	}
	if !item.Parsed() {
		log.Error().Msg("Quiz output was malformed")
		fmt.Println(item.Raw)
		return
	}
	helper.PrettyPrint(item.Item)
}

func runOutline(ctx context.Context, cfg *config.Config, asHTML bool) {
	engine, err := newEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building engine")
	}
	generator := engine.Generator()
	if generator == nil {
		log.Fatal().Msg("Generation service is not configured, cannot generate the outline")
	}

	results, err := engine.Search(ctx, cfg.Chapter.Title+" main concepts and methods", 10)
	if err != nil {
		log.Fatal().Err(err).Msg("Error retrieving outline context")
	}
	if len(results) == 0 {
		log.Fatal().Msg("Knowledge store is empty, ingest the chapter first")
	}
	var texts []string
	for _, r := range results {
		texts = append(texts, r.Text)
	}

	gen := outline.NewGenerator(generator, cfg.Chapter.Number, cfg.Chapter.Title)
	markdown, err := gen.Generate(ctx, strings.Join(texts, "\n\n"))
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating outline")
	}
	if asHTML {
		page, err := outline.RenderHTML(markdown)
		if err != nil {
			log.Fatal().Err(err).Msg("Error rendering outline")
		}
		fmt.Println(page)
		return
	}
	fmt.Println(markdown)
}

func runStats(ctx context.Context, cfg *config.Config) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening store")
	}
	count, err := store.Count(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error counting documents")
	}
	helper.PrettyPrint(rag.Stats{DocumentCount: count, CollectionName: store.Name()})
}

func runClear(ctx context.Context, cfg *config.Config) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening store")
	}
	if err := store.Clear(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error clearing store")
	}
	log.Info().Str("collection", store.Name()).Msg("Knowledge store cleared")
}

// newSnapshotStore opens the store and checks it supports snapshots; only
// the chromem backend does.
func newSnapshotStore(ctx context.Context, cfg *config.Config) *vectorstore.ChromemStore {
	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening store")
	}
	cs, ok := store.(*vectorstore.ChromemStore)
	if !ok {
		log.Fatal().Str("backend", cfg.Store.Backend).Msg("Snapshots are only supported by the chromem backend")
	}
	return cs
}

func runExport(ctx context.Context, cfg *config.Config) {
	store := newSnapshotStore(ctx, cfg)
	if err := store.Export(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error exporting snapshot")
	}
	log.Info().Str("collection", store.Name()).Msg("Snapshot written")
}

func runImport(ctx context.Context, cfg *config.Config) {
	store := newSnapshotStore(ctx, cfg)
	if err := store.Import(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error importing snapshot")
	}
	count, err := store.Count(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error counting documents")
	}
	log.Info().Str("collection", store.Name()).Int("documents", count).Msg("Snapshot restored")
}
