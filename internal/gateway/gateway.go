package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gci-tools/reportes-console/internal/credstore"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

// SessionInvalidatedFunc is called after a 401 has cleared the credential so
// the presentation layer can drop to the unauthenticated view.
type SessionInvalidatedFunc func(detail string)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Gateway is the single path to the server. Every component calls through it;
// it is also the only place where a failed call mutates credential state.
type Gateway struct {
	log    *logger.Logger
	cfg    Config
	http   *http.Client
	creds  *credstore.Store
	tracer trace.Tracer

	onInvalid SessionInvalidatedFunc
}

func New(log *logger.Logger, cfg Config, creds *credstore.Store) (*Gateway, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential store required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Gateway{
		log:    log.With("component", "SessionGateway"),
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		creds:  creds,
		tracer: otel.Tracer("reportes-console/gateway"),
	}, nil
}

// OnSessionInvalidated registers the hook fired when a 401 terminates the
// session. At most one hook; later registrations replace earlier ones.
func (g *Gateway) OnSessionInvalidated(fn SessionInvalidatedFunc) {
	g.onInvalid = fn
}

// errorBody is the service's error convention on non-2xx responses.
type errorBody struct {
	Detail string `json:"detail"`
}

func parseDetail(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	return strings.TrimSpace(eb.Detail)
}

// Call performs one request against the service. It attaches the stored
// bearer credential iff one is present, and maps failures onto the apierr
// taxonomy. On 401 the credential is cleared unconditionally before the error
// is returned. On success it returns the raw body and the response media type;
// the caller decides whether to decode JSON.
func (g *Gateway) Call(ctx context.Context, method, path string, body any) ([]byte, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := g.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			span.SetStatus(codes.Error, "encode body")
			return nil, "", apierr.Wrap(apierr.KindValidation, 0, fmt.Errorf("encode request body: %w", err))
		}
		buf = bytes.NewReader(raw)
	}

	u := g.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return nil, "", apierr.Wrap(apierr.KindRemote, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := g.creds.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, "", apierr.Wrap(apierr.KindRemote, 0, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// A 401 is authoritative proof the session is invalid, whatever the
		// path or method. Clear the credential before anything else sees it.
		if cerr := g.creds.Clear(); cerr != nil {
			g.log.Warn("failed to clear credential after 401", "error", cerr)
		}
		detail := parseDetail(raw)
		if detail == "" {
			detail = "session is invalid or has expired"
		}
		g.log.Info("session invalidated by server", "method", method, "path", path)
		if g.onInvalid != nil {
			g.onInvalid(detail)
		}
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, "", apierr.Unauthenticated(detail)

	case resp.StatusCode == http.StatusForbidden:
		span.SetStatus(codes.Error, "forbidden")
		return nil, "", apierr.Forbidden()

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		span.SetStatus(codes.Error, "remote error")
		return nil, "", apierr.Remote(resp.StatusCode, parseDetail(raw))
	}

	mediaType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}
	return raw, mediaType, nil
}

// IsJSON reports whether a media type returned by Call declares JSON.
func IsJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// JSON performs a call and decodes the JSON response into T. Non-JSON success
// bodies are a contract violation for the endpoints this client consumes.
func JSON[T any](ctx context.Context, g *Gateway, method, path string, body any) (*T, error) {
	raw, mediaType, err := g.Call(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if !IsJSON(mediaType) {
		return nil, apierr.Remote(0, fmt.Sprintf("expected JSON from %s %s, got %q", method, path, mediaType))
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindRemote, 0, fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return &out, nil
}
