package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/agentcoord/internal/tlsutil"
	"github.com/BaSui01/agentcoord/message"
)

// maxResponseBytes bounds how much of a worker response is read.
const maxResponseBytes = 1 << 20

// HTTPConfig describes a remote worker reached over HTTP.
type HTTPConfig struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Skills         []string      `json:"skills"`
	Endpoint       string        `json:"endpoint"`
	StatusEndpoint string        `json:"status_endpoint,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
}

// HTTPWorker forwards messages as JSON POST requests to Endpoint.
type HTTPWorker struct {
	cfg    HTTPConfig
	client *http.Client
}

// probingHTTPWorker adds a status probe backed by StatusEndpoint.
type probingHTTPWorker struct {
	*HTTPWorker
}

// NewHTTP returns a remote worker. When cfg.StatusEndpoint is set the returned
// value also implements StatusProber. A nil client gets a hardened default.
func NewHTTP(cfg HTTPConfig, client *http.Client) (Worker, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("worker id is empty")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("worker %s: endpoint is empty", cfg.ID)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	cfg.Skills = append([]string(nil), cfg.Skills...)

	w := &HTTPWorker{cfg: cfg, client: client}
	if cfg.StatusEndpoint != "" {
		return &probingHTTPWorker{HTTPWorker: w}, nil
	}
	return w, nil
}

func (w *HTTPWorker) ID() string   { return w.cfg.ID }
func (w *HTTPWorker) Name() string { return w.cfg.Name }

// Skills returns a copy of the advertised skills.
func (w *HTTPWorker) Skills() []string {
	return append([]string(nil), w.cfg.Skills...)
}

// Config returns the registration data of this worker.
func (w *HTTPWorker) Config() HTTPConfig {
	cfg := w.cfg
	cfg.Skills = w.Skills()
	return cfg
}

// ProcessMessage posts msg to the endpoint. An empty 2xx body yields a zero Result.
func (w *HTTPWorker) ProcessMessage(ctx context.Context, msg message.Message) (Result, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Message-ID", msg.ID)

	var res Result
	if err := w.do(req, &res); err != nil {
		return Result{}, fmt.Errorf("deliver to %s: %w", w.cfg.ID, err)
	}
	return res, nil
}

// Status implements StatusProber via GET StatusEndpoint.
func (w *probingHTTPWorker) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.StatusEndpoint, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build request: %w", err)
	}
	var st Status
	if err := w.do(req, &st); err != nil {
		return Status{}, fmt.Errorf("probe %s: %w", w.cfg.ID, err)
	}
	if st.State == "" {
		st.State = StateHealthy
	}
	return st, nil
}

func (w *HTTPWorker) do(req *http.Request, out any) error {
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
