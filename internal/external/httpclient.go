package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
)

const maxResponseBytes = 1 << 20

// jsonClient posts JSON and decodes JSON replies with a bearer key.
type jsonClient struct {
	name     string
	endpoint string
	apiKey   string
	http     *http.Client
	tracer   trace.Tracer
}

func newJSONClient(name, endpoint, apiKey string, timeout time.Duration) *jsonClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &jsonClient{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		tracer:   otel.Tracer("nexus-portal/external"),
	}
}

func (c *jsonClient) post(ctx context.Context, in, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, c.name, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Network(err, c.name+" unreachable")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperr.Network(err, "read "+c.name+" response")
	}
	if resp.StatusCode >= 300 {
		return apperr.Network(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200)), c.name+" failed")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Network(err, "decode "+c.name+" response")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
