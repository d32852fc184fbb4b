package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook POSTs the event as JSON. Any non-2xx response is an error.
type Webhook struct {
	name   string
	url    string
	secret string
	client *http.Client
}

func NewWebhook(name, url, secret string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{
		name:   name,
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Execute(ctx context.Context, ev *domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Aegis-Event", string(ev.Kind))
	req.Header.Set("X-Aegis-Delivery", ev.ID)
	if strings.TrimSpace(w.secret) != "" {
		req.Header.Set("X-Aegis-Secret", w.secret)
	}
	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook %s: status %d: %s", w.name, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

var _ ports.Action = (*Webhook)(nil)
