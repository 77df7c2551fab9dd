package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gci-tools/reportes-console/internal/credstore"
	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

func newTestClient(t *testing.T, routes func(r *gin.Engine)) *Client {
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
	gw, err := gateway.New(logger.Nop(), gateway.Config{BaseURL: srv.URL}, creds)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	c, err := New(logger.Nop(), gw)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestListReports(t *testing.T) {
	c := newTestClient(t, func(r *gin.Engine) {
		r.GET("/reportes", func(c *gin.Context) {
			c.JSON(http.StatusOK, []Report{
				{ID: 1, Code: "VENTAS", Name: "Ventas mensuales", RequiresInputFile: true, AllowedTypes: "csv;xlsx", Active: true},
				{ID: 2, Code: "STOCK", Name: "Stock", Active: true},
			})
		})
	})

	out, err := c.ListReports(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].Code != "VENTAS" || !out[0].RequiresInputFile {
		t.Fatalf("unexpected listing %+v", out)
	}
}

func TestListInputFiles(t *testing.T) {
	var gotMax string
	c := newTestClient(t, func(r *gin.Engine) {
		r.GET("/reportes/:codigo/archivos-input", func(c *gin.Context) {
			gotMax = c.Query("max_items")
			c.JSON(http.StatusOK, InputFiles{Report: c.Param("codigo"), Files: []string{"/data/in/ventas_feb.csv"}})
		})
	})

	out, err := c.ListInputFiles(context.Background(), "VENTAS", 50)
	if err != nil {
		t.Fatalf("list input files: %v", err)
	}
	if out.Report != "VENTAS" || len(out.Files) != 1 {
		t.Fatalf("unexpected answer %+v", out)
	}
	if gotMax != "50" {
		t.Fatalf("max_items = %q, want 50", gotMax)
	}
}

func TestListInputFilesRequiresCode(t *testing.T) {
	c := newTestClient(t, func(r *gin.Engine) {})
	if _, err := c.ListInputFiles(context.Background(), "  ", 10); !apierr.IsValidation(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}
