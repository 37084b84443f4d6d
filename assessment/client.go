package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
)

var logger = log.New(os.Stdout, "[Assessment] ", log.LstdFlags|log.Lshortfile)

// SystemPrompt задает формат ответа модели
const SystemPrompt = "You are an expert mechanic. Given a plain OBD2 error code, provide a resolution in a structured JSON format with fields: 'errorCode', 'severity' (0-Low, 1-Medium, 2-High), 'title' (max 60 chars), 'detail' (~300 chars), 'implications' (~300 chars), and 'suggestedActions' (array of strings)."

// ErrMissingAPIKey возвращается, если ключ не задан ни в настройках, ни в окружении
var ErrMissingAPIKey = errors.New("assessment API key is not configured")

// Config конфигурация клиента оценки
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Attempts    uint          `mapstructure:"attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	Concurrency int           `mapstructure:"concurrency"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-5-mini",
		Timeout:     60 * time.Second,
		Attempts:    3,
		RetryDelay:  time.Second,
		CacheTTL:    time.Hour,
		Concurrency: 4,
	}
}

// Client получает оценку кодов неисправностей у OpenAI-совместимого сервиса
type Client struct {
	config Config
	http   *http.Client
	cache  *ttlcache.Cache[string, Record]
}

// NewClient создает клиента. Вызовите Close, чтобы остановить очистку кэша.
func NewClient(config Config) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Attempts == 0 {
		config.Attempts = 1
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	c := &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		cache:  ttlcache.New[string, Record](ttlcache.WithTTL[string, Record](config.CacheTTL)),
	}
	go c.cache.Start()
	return c
}

// Close останавливает фоновую очистку кэша
func (c *Client) Close() {
	c.cache.Stop()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// statusError - ответ сервиса с кодом, отличным от 200
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("assessment service returned %d: %s", e.code, e.body)
}

// retryable: сетевые ошибки, 429 и 5xx
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// Assess возвращает оценку кода. Нечитаемый ответ дает Fallback() без ошибки,
// ошибки HTTP возвращаются вызывающему.
func (c *Client) Assess(ctx context.Context, code string) (Record, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Record{}, errors.New("empty trouble code")
	}

	if item := c.cache.Get(code); item != nil {
		return item.Value(), nil
	}

	if c.config.APIKey == "" {
		return Record{}, ErrMissingAPIKey
	}

	content, err := retry.DoWithData(
		func() (string, error) {
			return c.complete(ctx, code)
		},
		retry.Context(ctx),
		retry.Attempts(c.config.Attempts),
		retry.Delay(c.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Printf("Retry %d for %s: %v", n+1, code, err)
		}),
	)
	if err != nil {
		return Record{}, fmt.Errorf("assess %s: %w", code, err)
	}

	record := ParseRecord(content)
	if !record.IsFallback() {
		c.cache.Set(code, record, ttlcache.DefaultTTL)
	}
	return record, nil
}

// AssessAll оценивает коды параллельно (не больше Concurrency запросов),
// порядок результатов совпадает с порядком кодов
func (c *Client) AssessAll(ctx context.Context, codes []string) ([]Record, error) {
	records := make([]Record, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for i, code := range codes {
		g.Go(func() error {
			record, err := c.Assess(gctx, code)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) complete(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: code},
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var completion chatResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == nil {
		return "{}", nil
	}
	return *completion.Choices[0].Message.Content, nil
}
