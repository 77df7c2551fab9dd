package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

// Report is one entry of the submittable-report catalog. The server already
// narrows the list to what the authenticated user's teams allow.
type Report struct {
	ID                int    `json:"id"`
	Code              string `json:"codigo"`
	Name              string `json:"nombre"`
	RequiresInputFile bool   `json:"requiere_input_archivo"`
	AllowedTypes      string `json:"tipos_permitidos"`
	Active            bool   `json:"activo"`
}

// InputFiles lists the files available under a report's allowed folders.
type InputFiles struct {
	Report string   `json:"reporte"`
	Files  []string `json:"archivos"`
}

type Client struct {
	log *logger.Logger
	gw  *gateway.Gateway
}

func New(log *logger.Logger, gw *gateway.Gateway) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway required")
	}
	return &Client{log: log.With("component", "Catalog"), gw: gw}, nil
}

func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	out, err := gateway.JSON[[]Report](ctx, c.gw, http.MethodGet, "/reportes", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) ListInputFiles(ctx context.Context, code string, maxItems int) (*InputFiles, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apierr.Validation("a report code is required")
	}
	path := "/reportes/" + url.PathEscape(code) + "/archivos-input"
	if maxItems > 0 {
		path += fmt.Sprintf("?max_items=%d", maxItems)
	}
	return gateway.JSON[InputFiles](ctx, c.gw, http.MethodGet, path, nil)
}
