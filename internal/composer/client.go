package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/pkg/logger"
)

var (
	ErrUnavailable = errors.New("composer provider unavailable")
)

// ComposeRequest is the payload handed to a composer provider. The provider
// presents it to the person holding the device and reports what they did.
type ComposeRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

type ComposeResponse struct {
	Result     string    `json:"result"`
	ComposedAt time.Time `json:"composed_at"`
	ErrorMsg   string    `json:"error_message,omitempty"`
}

const (
	resultSent      = "sent"
	resultDismissed = "dismissed"
)

type ClientConfig struct {
	BaseURL string
	// Timeout bounds the whole user interaction, not just the network hop.
	Timeout time.Duration
}

// Client invokes a remote composer provider over HTTP and blocks until the
// provider reports the user's decision.
type Client struct {
	config ClientConfig
	http   *fasthttp.Client
}

func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	return &Client{
		config: config,
		http: &fasthttp.Client{
			MaxIdleConnDuration: 60 * time.Second,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        10 * time.Second,
		},
	}
}

func (c *Client) Compose(ctx context.Context, phone, text string) (model.ComposerOutcome, error) {
	body, err := json.Marshal(ComposeRequest{Phone: phone, Text: text})
	if err != nil {
		return model.OutcomeDismissed, fmt.Errorf("failed to marshal compose request: %w", err)
	}

	response, err := c.doRequest(ctx, "POST", "/api/v1/compose", body)
	if err != nil {
		return model.OutcomeDismissed, err
	}

	var resp ComposeResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return model.OutcomeDismissed, fmt.Errorf("failed to unmarshal compose response: %w", err)
	}

	switch resp.Result {
	case resultSent:
		return model.OutcomeSent, nil
	case resultDismissed:
		return model.OutcomeDismissed, nil
	default:
		return model.OutcomeDismissed, fmt.Errorf("provider reported unknown result %q", resp.Result)
	}
}

// Ping checks that the provider is up without opening a composer.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		logger.Warn("composer: provider request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	statusCode := resp.StatusCode()
	if statusCode == fasthttp.StatusServiceUnavailable {
		return nil, ErrUnavailable
	}
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return result, nil
}
