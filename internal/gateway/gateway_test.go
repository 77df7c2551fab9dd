package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gci-tools/reportes-console/internal/credstore"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

func newTestGateway(t *testing.T, routes func(r *gin.Engine)) (*Gateway, *credstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	creds, err := credstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("credstore: %v", err)
	}
	gw, err := New(logger.Nop(), Config{BaseURL: srv.URL}, creds)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return gw, creds
}

func TestCallOmitsBearerWithoutCredential(t *testing.T) {
	var gotAuth string
	gw, _ := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/ping", func(c *gin.Context) {
			gotAuth = c.GetHeader("Authorization")
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	})

	if _, _, err := gw.Call(context.Background(), http.MethodGet, "/ping", nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestCallAttachesBearerWithCredential(t *testing.T) {
	var gotAuth string
	gw, creds := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/ping", func(c *gin.Context) {
			gotAuth = c.GetHeader("Authorization")
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	})
	if err := creds.SetToken("tok-123"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	if _, _, err := gw.Call(context.Background(), http.MethodGet, "/ping", nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
}

func TestUnauthorizedClearsCredentialAndFiresHook(t *testing.T) {
	gw, creds := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/whatever", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "token expirado"})
		})
	})
	if err := creds.SetToken("stale"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	var hookDetail string
	gw.OnSessionInvalidated(func(detail string) { hookDetail = detail })

	_, _, err := gw.Call(context.Background(), http.MethodGet, "/whatever", nil)
	if !apierr.IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	if _, ok := creds.Token(); ok {
		t.Fatalf("credential should have been cleared after 401")
	}
	if hookDetail != "token expirado" {
		t.Fatalf("hook detail = %q, want server detail", hookDetail)
	}
}

func TestUnauthorizedWithoutDetailUsesFallback(t *testing.T) {
	gw, _ := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/whatever", func(c *gin.Context) {
			c.Status(http.StatusUnauthorized)
		})
	})

	_, _, err := gw.Call(context.Background(), http.MethodGet, "/whatever", nil)
	var e *apierr.Error
	if !apierr.IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	if !asAPIError(err, &e) || e.Detail != "session is invalid or has expired" {
		t.Fatalf("expected fallback detail, got %v", err)
	}
}

func TestUnauthorizedIsIdempotentOnClearedCredential(t *testing.T) {
	gw, creds := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/whatever", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "nope"})
		})
	})
	fired := 0
	gw.OnSessionInvalidated(func(string) { fired++ })

	for i := 0; i < 2; i++ {
		if _, _, err := gw.Call(context.Background(), http.MethodGet, "/whatever", nil); !apierr.IsUnauthenticated(err) {
			t.Fatalf("call %d: expected unauthenticated, got %v", i, err)
		}
	}
	if _, ok := creds.Token(); ok {
		t.Fatalf("credential present after repeated 401s")
	}
	if fired != 2 {
		t.Fatalf("hook fired %d times, want 2", fired)
	}
}

func TestForbiddenKeepsCredential(t *testing.T) {
	gw, creds := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/admin/only", func(c *gin.Context) {
			c.JSON(http.StatusForbidden, gin.H{"detail": "whatever the server says"})
		})
	})
	if err := creds.SetToken("still-good"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	_, _, err := gw.Call(context.Background(), http.MethodGet, "/admin/only", nil)
	if !apierr.IsForbidden(err) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	tok, ok := creds.Token()
	if !ok || tok != "still-good" {
		t.Fatalf("403 must not touch the credential, got (%q, %v)", tok, ok)
	}
	var e *apierr.Error
	if !asAPIError(err, &e) || e.Detail != "insufficient privileges for this operation" {
		t.Fatalf("forbidden must carry the fixed message, got %v", err)
	}
}

func TestRemoteErrorCarriesStatusAndDetail(t *testing.T) {
	gw, _ := newTestGateway(t, func(r *gin.Engine) {
		r.POST("/solicitudes", func(c *gin.Context) {
			c.JSON(http.StatusConflict, gin.H{"detail": "duplicada"})
		})
	})

	_, _, err := gw.Call(context.Background(), http.MethodPost, "/solicitudes", map[string]string{"a": "b"})
	var e *apierr.Error
	if !asAPIError(err, &e) {
		t.Fatalf("expected apierr, got %v", err)
	}
	if e.Status != http.StatusConflict || e.Detail != "duplicada" {
		t.Fatalf("got status=%d detail=%q", e.Status, e.Detail)
	}
}

func TestJSONDecodesTypedResponse(t *testing.T) {
	type pong struct {
		Status string `json:"status"`
	}
	gw, _ := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	})

	out, err := JSON[pong](context.Background(), gw, http.MethodGet, "/health", nil)
	if err != nil {
		t.Fatalf("json call: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("decoded %+v", out)
	}
}

func TestJSONRejectsNonJSONBody(t *testing.T) {
	gw, _ := newTestGateway(t, func(r *gin.Engine) {
		r.GET("/blob", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/plain", []byte("hello"))
		})
	})

	if _, err := JSON[map[string]any](context.Background(), gw, http.MethodGet, "/blob", nil); err == nil {
		t.Fatalf("expected an error for a non-JSON success body")
	}
}

func asAPIError(err error, target **apierr.Error) bool {
	return errors.As(err, target)
}

func TestIsJSON(t *testing.T) {
	cases := map[string]bool{
		"application/json":         true,
		"application/problem+json": true,
		"text/plain":               false,
		"":                         false,
	}
	for mt, want := range cases {
		if got := IsJSON(mt); got != want {
			t.Fatalf("IsJSON(%q) = %v, want %v", mt, got, want)
		}
	}
}
