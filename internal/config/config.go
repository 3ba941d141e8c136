package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by MINIMIND_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("MINIMIND_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StorageDriver selects the durable storage backend.
// Valid values: sqlite, postgres. Defaults to "sqlite".
func StorageDriver() string {
	d := os.Getenv("STORAGE_DRIVER")
	if d == "" {
		return "sqlite"
	}
	return d
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "minimind.db"
	}
	return p
}

// LLMProvider returns the configured inference backend.
// Defaults to "ollama" if not set.
// Valid values: ollama, openai, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "ollama"
	}
	return p
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// LLMAPIKey returns the API key for the configured backend.
// Ollama and mock need none.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "openai":
		return OpenAIAPIKey()
	default:
		return ""
	}
}

func OllamaBaseURL() string {
	u := os.Getenv("OLLAMA_BASE_URL")
	if u == "" {
		return "http://localhost:11434"
	}
	return strings.TrimRight(u, "/")
}

// ChatModel returns the completion model name.
func ChatModel() string {
	m := os.Getenv("CHAT_MODEL")
	if m == "" {
		return "llama3.2"
	}
	return m
}

// EmbeddingModel returns the embedding model name.
func EmbeddingModel() string {
	m := os.Getenv("EMBEDDING_MODEL")
	if m == "" {
		return "all-minilm"
	}
	return m
}

// EmbeddingDims is the fixed dimensionality of all embedding vectors.
// Defaults to 384 (all-minilm).
func EmbeddingDims() int {
	d, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMS"))
	if err != nil || d <= 0 {
		return 384
	}
	return d
}

// Temperature for decision completions. Defaults to 0.7.
func Temperature() float32 {
	t, err := strconv.ParseFloat(os.Getenv("TEMPERATURE"), 32)
	if err != nil || t < 0 {
		return 0.7
	}
	return float32(t)
}

// StopSequences returns extra stop sequences for decision completions,
// comma-separated. Empty by default.
func StopSequences() []string {
	raw := os.Getenv("STOP_SEQUENCES")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ImmediateWindow is the number of most recent entries kept verbatim in
// prompts. Defaults to 64.
func ImmediateWindow() int {
	n, err := strconv.Atoi(os.Getenv("IMMEDIATE_WINDOW"))
	if err != nil || n <= 0 {
		return 64
	}
	return n
}

// MidTermWindow is the number of entries each mid-term summary covers.
// Defaults to 64.
func MidTermWindow() int {
	n, err := strconv.Atoi(os.Getenv("MIDTERM_WINDOW"))
	if err != nil || n <= 0 {
		return 64
	}
	return n
}

// MaxMemories caps the in-memory log. Must exceed the two windows combined;
// defaults to 1024.
func MaxMemories() int {
	n, err := strconv.Atoi(os.Getenv("MAX_MEMORIES"))
	if err != nil || n <= 0 {
		return 1024
	}
	return n
}

// ThinkInterval is the per-agent decision cadence in seconds. Defaults to 30.
func ThinkInterval() float64 {
	v, err := strconv.ParseFloat(os.Getenv("THINK_INTERVAL"), 64)
	if err != nil || v <= 0 {
		return 30
	}
	return v
}

// TickInterval is the runner's wall-clock tick. Defaults to 1s.
func TickInterval() time.Duration {
	return durationEnv("TICK_INTERVAL", time.Second)
}

// SchedulerMaxRetries is how many times a backend call is attempted before a
// terminal failure. Defaults to 3.
func SchedulerMaxRetries() int {
	n, err := strconv.Atoi(os.Getenv("SCHEDULER_MAX_RETRIES"))
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// SchedulerRetryDelay is the fixed delay between backend attempts.
// Defaults to 1s.
func SchedulerRetryDelay() time.Duration {
	return durationEnv("SCHEDULER_RETRY_DELAY", time.Second)
}

// ProbeInterval is how often an unavailable backend is re-probed.
// Defaults to 30s.
func ProbeInterval() time.Duration {
	return durationEnv("PROBE_INTERVAL", 30*time.Second)
}

// IndexerInterval is how often pending summary snapshots are embedded.
// Defaults to 30s.
func IndexerInterval() time.Duration {
	return durationEnv("INDEXER_INTERVAL", 30*time.Second)
}

// GuardMaxRetries is how many identical consecutive decisions are rejected
// before repetition is treated as intentional. Defaults to 2.
func GuardMaxRetries() int {
	n, err := strconv.Atoi(os.Getenv("GUARD_MAX_RETRIES"))
	if err != nil || n < 0 {
		return 2
	}
	return n
}

// RecallMinSimilarity is the similarity floor for note and summary recall.
// Defaults to 0.3.
func RecallMinSimilarity() float32 {
	v, err := strconv.ParseFloat(os.Getenv("RECALL_MIN_SIMILARITY"), 32)
	if err != nil || v < 0 {
		return 0.3
	}
	return float32(v)
}

// Agents returns the configured agent names, comma-separated.
// Defaults to a single demo agent.
func Agents() []string {
	raw := os.Getenv("AGENTS")
	if raw == "" {
		return []string{"ember"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ProfileDir holds per-agent persona files (<name>.txt). Defaults to
// "profiles".
func ProfileDir() string {
	d := os.Getenv("PROFILE_DIR")
	if d == "" {
		return "profiles"
	}
	return d
}

// StartRoom is where agents wake up on process start. Defaults to the
// first default room.
func StartRoom() string {
	r := os.Getenv("START_ROOM")
	if r == "" {
		return "Living Room"
	}
	return r
}

// APIKey protects the HTTP surface when set. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
