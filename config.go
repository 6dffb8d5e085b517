package docrag

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/yeojin-kim/docrag/llm"
)

// Config holds all configuration for the docrag engine: backends, chunker
// defaults, ingestion caps, and retrieval thresholds (§6 Configuration).
type Config struct {
	DBPath     string `json:"db_path"`
	UploadsDir string `json:"uploads_dir"`

	Embedding llm.Config `json:"embedding"`
	Chat      llm.Config `json:"chat"`

	ChunkSizeTokens    int `json:"chunk_size_tokens"`
	ChunkOverlapTokens int `json:"chunk_overlap_tokens"`
	MaxChunksEmb       int `json:"max_chunks_emb"`

	FastMode          bool `json:"fast_mode"`
	RenderPages       bool `json:"render_pages"`
	EnableTableIndex  bool `json:"enable_table_index"`
	MaxTableRowsEmb   int  `json:"max_table_rows_emb"`
	MaxCaptionPages   int  `json:"max_caption_pages"`

	RetrieveMin  float64 `json:"retrieve_min"`
	UseAsCtxMin  float64 `json:"use_as_ctx_min"`
	MinTop3Avg   float64 `json:"min_top3_avg"`
	TextK        int     `json:"text_k"`
	TableK       int     `json:"table_k"`
	ImageK       int     `json:"image_k"`
	MaxCtxChars  int     `json:"max_ctx_chars"`

	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`

	HWP2TxtExe string `json:"hwp2txt_exe"`

	// AuthToken, when non-empty, is required as a bearer token on every
	// request except /health (ambient; not a spec feature — see
	// cmd/server/middleware.go).
	AuthToken string `json:"auth_token"`
}

// EmbeddingDim is the fixed vector dimension D required by the data model
// (§3). Mixing dimensions is rejected at insert time.
const EmbeddingDim = 1024

// DefaultConfig returns a Config with the defaults named throughout §4 and
// §6: chunk 800/120, retrieval thresholds 0.35/0.60/0.55, per-slice K of
// 5/10/4, and a 4,000-char context budget.
func DefaultConfig() Config {
	return Config{
		DBPath:     "docrag.db",
		UploadsDir: "uploads",
		Embedding: llm.Config{
			Provider: "custom",
			Model:    "text-embedding-3-large",
			BaseURL:  "http://localhost:8001",
		},
		Chat: llm.Config{
			Provider: "custom",
			Model:    "gpt-4o-mini",
			BaseURL:  "http://localhost:8000",
		},
		ChunkSizeTokens:    800,
		ChunkOverlapTokens: 120,
		MaxChunksEmb:       0,
		EnableTableIndex:   true,
		MaxTableRowsEmb:    200,
		MaxCaptionPages:    20,
		RetrieveMin:        0.35,
		UseAsCtxMin:        0.60,
		MinTop3Avg:         0.55,
		TextK:              5,
		TableK:             10,
		ImageK:             4,
		MaxCtxChars:        4000,
		MaxNewTokens:       600,
		Temperature:        0.2,
		TopP:               0.9,
	}
}

// LoadConfig reads a JSON config file (if path is non-empty) layered under
// DefaultConfig, then applies environment-variable overrides, matching the
// teacher's flag+JSON+os.Getenv pattern in cmd/server/main.go.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	i := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	f := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = n
			}
		}
	}
	b := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || v == "true"
		}
	}

	str("EMB_URL", &c.Embedding.BaseURL)
	str("EMB_MODEL", &c.Embedding.Model)
	str("LLM_URL", &c.Chat.BaseURL)
	str("LLM_MODEL", &c.Chat.Model)

	i("CHUNK_SIZE_TOKENS", &c.ChunkSizeTokens)
	i("CHUNK_OVERLAP_TOKENS", &c.ChunkOverlapTokens)
	i("MAX_CHUNKS_EMB", &c.MaxChunksEmb)
	b("FAST_MODE", &c.FastMode)
	b("RENDER_PAGES", &c.RenderPages)
	b("ENABLE_TABLE_INDEX", &c.EnableTableIndex)
	i("MAX_TABLE_ROWS_EMB", &c.MaxTableRowsEmb)
	i("MAX_CAPTION_PAGES", &c.MaxCaptionPages)

	f("RETRIEVE_MIN", &c.RetrieveMin)
	f("USE_AS_CTX_MIN", &c.UseAsCtxMin)
	f("MIN_TOP3_AVG", &c.MinTop3Avg)
	i("TEXT_K", &c.TextK)
	i("TABLE_K", &c.TableK)
	i("IMAGE_K", &c.ImageK)

	str("HWP2TXT_EXE", &c.HWP2TxtExe)
	str("AUTH_TOKEN", &c.AuthToken)

	if c.FastMode {
		c.MaxTableRowsEmb = 0
		c.MaxCaptionPages = 0
	}
}
