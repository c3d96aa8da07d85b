// Package llm provides the Ollama generation adapter.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
)

// Defaults matching a stock local Ollama install.
const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "llama3.1:8b"
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultTimeout     = 120 * time.Second
	DefaultPingTimeout = 5 * time.Second
)

// NoResponseText is returned when Ollama answers without a response field.
const NoResponseText = "No response generated"

const (
	connectionMessage = "Cannot connect to Ollama. Make sure it's running with: ollama serve"
	timeoutMessage    = "Ollama request timed out. Try a smaller model or simpler question."
)

// Config configures an OllamaGenerator. Zero values take the defaults above.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	Timeout     time.Duration
	PingTimeout time.Duration
}

// OllamaGenerator implements ports.Generator using Ollama's /api/generate.
type OllamaGenerator struct {
	baseURL     string
	temperature float64
	topP        float64
	pingTimeout time.Duration
	client      *http.Client
	logger      *slog.Logger

	mu    sync.RWMutex
	model string
}

// NewOllamaGenerator creates a new Ollama generation adapter.
func NewOllamaGenerator(cfg Config, logger *slog.Logger) *OllamaGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.TopP == 0 {
		cfg.TopP = DefaultTopP
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaGenerator{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		pingTimeout: cfg.PingTimeout,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

// Generate sends prompt as a single non-streaming request.
// Every failure is a *entities.GenerationError.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  g.Model(),
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: g.temperature,
			TopP:        g.topP,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", otherError(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", otherError(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		genErr := classify(err)
		g.logger.Warn("ollama generate failed", "model", reqBody.Model, "kind", genErr.Kind.String(), "error", err)
		return "", genErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", otherError(fmt.Errorf("Ollama returned status %d", resp.StatusCode))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", classify(fmt.Errorf("decoding response: %w", err))
	}

	g.logger.Debug("ollama generate done", "model", reqBody.Model, "elapsed", time.Since(start))
	if genResp.Response == nil {
		return NoResponseText, nil
	}
	return *genResp.Response, nil
}

// Ping reports whether GET /api/tags answers 200 within the ping timeout.
func (g *OllamaGenerator) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, g.pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Model returns the model used for new requests.
func (g *OllamaGenerator) Model() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model
}

// SetModel switches the model for subsequent requests.
func (g *OllamaGenerator) SetModel(name string) {
	g.mu.Lock()
	g.model = name
	g.mu.Unlock()
	g.logger.Info("switched model", "model", name)
}

// classify maps a transport error onto a GenerationError kind.
// Dial failures count as connection errors even when they time out.
func classify(err error) *entities.GenerationError {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if (errors.As(err, &opErr) && opErr.Op == "dial") || errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return &entities.GenerationError{Kind: entities.GenerationConnection, Message: connectionMessage, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &entities.GenerationError{Kind: entities.GenerationTimeout, Message: timeoutMessage, Err: err}
	}

	return otherError(err)
}

func otherError(err error) *entities.GenerationError {
	return &entities.GenerationError{
		Kind:    entities.GenerationOther,
		Message: "Error calling Ollama: " + err.Error(),
		Err:     err,
	}
}
