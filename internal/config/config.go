package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration accepts "60s" style values in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Chapter  ChapterConfig `yaml:"chapter"`
	RAG      RAGConfig     `yaml:"rag"`
	EmbedLLM LLMConfig     `yaml:"embed_llm"`
	ChatLLM  LLMConfig     `yaml:"chat_llm"`
	Store    StoreConfig   `yaml:"store"`
	Retry    RetryConfig   `yaml:"retry"`
}

// ChapterConfig pins the deployment to one textbook chapter.
type ChapterConfig struct {
	Number     int    `yaml:"number"`
	Title      string `yaml:"title"`
	Slug       string `yaml:"slug"`
	Source     string `yaml:"source"`
	PDFPath    string `yaml:"pdf_path"`
	StartPage  int    `yaml:"start_page"`
	EndPage    int    `yaml:"end_page"`
	// PageOffset maps a PDF page number to the printed book page
	// (book page = PDF page - offset).
	PageOffset int `yaml:"page_offset"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type LLMConfig struct {
	Provider    string   `yaml:"provider"` // openai or ollama
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	KeyEnv      string   `yaml:"key_env"`
	Key         string   `yaml:"-"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"` // chromem or postgres
	Path          string `yaml:"path"`
	InMemory      bool   `yaml:"in_memory"`
	EncryptionKey string `yaml:"-"`
	DSN           string `yaml:"dsn"`
	PasswordEnv   string `yaml:"password_env"`
	Password      string `yaml:"-"`
	Debug         bool   `yaml:"debug"`
}

type RetryConfig struct {
	Attempts  int      `yaml:"attempts"`
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 100
	defaultTopK         = 5
	defaultTimeout      = Duration(60 * time.Second)
	defaultAttempts     = 3
	defaultBaseDelay    = Duration(time.Second)
	defaultMaxDelay     = Duration(30 * time.Second)
	defaultTemperature  = 0.7
	defaultMaxTokens    = 2000
)

// LoadConfig reads the yaml config and resolves credentials from the
// environment. A .env file next to the working directory is honored when
// present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.resolveEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap <= 0 {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.Chapter.Slug == "" {
		c.Chapter.Slug = "chapter"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "chromem"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./chromemdb"
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = defaultAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = defaultBaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = defaultMaxDelay
	}
	for _, llm := range []*LLMConfig{&c.EmbedLLM, &c.ChatLLM} {
		if llm.Timeout <= 0 {
			llm.Timeout = defaultTimeout
		}
	}
	if c.ChatLLM.Temperature <= 0 {
		c.ChatLLM.Temperature = defaultTemperature
	}
	if c.ChatLLM.MaxTokens <= 0 {
		c.ChatLLM.MaxTokens = defaultMaxTokens
	}
}

func (c *Config) resolveEnv() {
	if c.EmbedLLM.KeyEnv != "" {
		c.EmbedLLM.Key = os.Getenv(c.EmbedLLM.KeyEnv)
	}
	if c.ChatLLM.KeyEnv != "" {
		c.ChatLLM.Key = os.Getenv(c.ChatLLM.KeyEnv)
	}
	if c.Store.PasswordEnv != "" {
		c.Store.Password = os.Getenv(c.Store.PasswordEnv)
	}
	c.Store.EncryptionKey = os.Getenv("STORE_ENCRYPTION_KEY")
}

// CollectionName derives the per-chapter collection identifier,
// e.g. "chapter_10_anomaly_detection".
func (c *ChapterConfig) CollectionName() string {
	return fmt.Sprintf("chapter_%d_%s", c.Number, c.Slug)
}
