package admin

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

// Page is the service's standard paged envelope.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// Report is the full admin view of a report definition, including the fields
// the regular catalog hides (command, output base path).
type Report struct {
	ID                int    `json:"id"`
	Code              string `json:"codigo"`
	Name              string `json:"nombre"`
	Description       string `json:"descripcion"`
	RequiresInputFile int    `json:"requiere_input_archivo"`
	AllowedTypes      string `json:"tipos_permitidos"`
	Active            int    `json:"activo"`
	Command           string `json:"comando"`
	OutputBasePath    string `json:"ruta_output_base"`
}

type ReportCreate struct {
	Code              string `json:"codigo"`
	Name              string `json:"nombre"`
	Description       string `json:"descripcion,omitempty"`
	RequiresInputFile int    `json:"requiere_input_archivo"`
	AllowedTypes      string `json:"tipos_permitidos,omitempty"`
	Active            int    `json:"activo"`
	Command           string `json:"comando,omitempty"`
	OutputBasePath    string `json:"ruta_output_base,omitempty"`
}

// ReportUpdate is a partial update; nil fields are left untouched.
type ReportUpdate struct {
	Code              *string `json:"codigo,omitempty"`
	Name              *string `json:"nombre,omitempty"`
	Description       *string `json:"descripcion,omitempty"`
	RequiresInputFile *int    `json:"requiere_input_archivo,omitempty"`
	AllowedTypes      *string `json:"tipos_permitidos,omitempty"`
	Active            *int    `json:"activo,omitempty"`
	Command           *string `json:"comando,omitempty"`
	OutputBasePath    *string `json:"ruta_output_base,omitempty"`
}

// Folder is one allowed input-folder route for a report.
type Folder struct {
	ID         int    `json:"id"`
	ReportCode string `json:"reporte_codigo"`
	BasePath   string `json:"ruta_base"`
	Active     int    `json:"activo"`
}

type FolderUpdate struct {
	BasePath *string `json:"ruta_base,omitempty"`
	Active   *int    `json:"activo,omitempty"`
}

type User struct {
	ID       int      `json:"id"`
	Username string   `json:"username"`
	Active   int      `json:"activo"`
	Roles    []string `json:"roles"`
}

// UserCreated echoes the new user along with the generated temporary password.
type UserCreated struct {
	User
	TemporaryPassword string `json:"password_temporal"`
}

type PasswordReset struct {
	Detail            string `json:"detail"`
	TemporaryPassword string `json:"password_temporal"`
}

type Team struct {
	ID     int    `json:"id"`
	Name   string `json:"nombre"`
	Active int    `json:"activo"`
}

// Client is the administrator surface: report definitions, folder routes,
// users and teams. Every call goes through the session gateway, so privilege
// failures come back as Forbidden without touching the credential.
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
	return &Client{log: log.With("component", "Admin"), gw: gw}, nil
}

// ---- reports ----

func (c *Client) ListReports(ctx context.Context, codeFilter string, page, pageSize int) (*Page[Report], error) {
	q := url.Values{}
	if codeFilter = strings.TrimSpace(codeFilter); codeFilter != "" {
		q.Set("codigo", codeFilter)
	}
	if page > 0 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	if pageSize > 0 {
		q.Set("page_size", fmt.Sprintf("%d", pageSize))
	}
	path := "/admin/reportes"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return gateway.JSON[Page[Report]](ctx, c.gw, http.MethodGet, path, nil)
}

func (c *Client) CreateReport(ctx context.Context, in ReportCreate) (*Report, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return nil, apierr.Validation("report code and name are required")
	}
	return gateway.JSON[Report](ctx, c.gw, http.MethodPost, "/admin/reportes", in)
}

func (c *Client) UpdateReport(ctx context.Context, id int, in ReportUpdate) (*Report, error) {
	if id <= 0 {
		return nil, apierr.Validation("a report id is required")
	}
	return gateway.JSON[Report](ctx, c.gw, http.MethodPatch, fmt.Sprintf("/admin/reportes/%d", id), in)
}

// DeactivateReport soft-deactivates a report; the server keeps the row.
func (c *Client) DeactivateReport(ctx context.Context, id int) error {
	if id <= 0 {
		return apierr.Validation("a report id is required")
	}
	_, _, err := c.gw.Call(ctx, http.MethodDelete, fmt.Sprintf("/admin/reportes/%d", id), nil)
	return err
}

// ---- folder routes ----

func (c *Client) ListFolders(ctx context.Context, reportCode string) ([]Folder, error) {
	reportCode = strings.TrimSpace(reportCode)
	if reportCode == "" {
		return nil, apierr.Validation("a report code is required")
	}
	out, err := gateway.JSON[[]Folder](ctx, c.gw, http.MethodGet, "/admin/reportes/"+url.PathEscape(reportCode)+"/carpetas", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) AddFolder(ctx context.Context, reportCode, basePath string) (*Folder, error) {
	reportCode = strings.TrimSpace(reportCode)
	basePath = strings.TrimSpace(basePath)
	if reportCode == "" || basePath == "" {
		return nil, apierr.Validation("report code and base path are required")
	}
	body := map[string]string{"ruta_base": basePath}
	return gateway.JSON[Folder](ctx, c.gw, http.MethodPost, "/admin/reportes/"+url.PathEscape(reportCode)+"/carpetas", body)
}

func (c *Client) UpdateFolder(ctx context.Context, id int, in FolderUpdate) (*Folder, error) {
	if id <= 0 {
		return nil, apierr.Validation("a folder id is required")
	}
	return gateway.JSON[Folder](ctx, c.gw, http.MethodPatch, fmt.Sprintf("/admin/carpetas/%d", id), in)
}

// ---- users ----

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	out, err := gateway.JSON[[]User](ctx, c.gw, http.MethodGet, "/admin/usuarios", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) CreateUser(ctx context.Context, username string, roles []string, active bool) (*UserCreated, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		return nil, apierr.Validation("username must be at least 3 characters")
	}
	act := 0
	if active {
		act = 1
	}
	body := map[string]any{"username": username, "roles": roles, "activo": act}
	return gateway.JSON[UserCreated](ctx, c.gw, http.MethodPost, "/admin/usuarios", body)
}

// ResetPassword asks the server for a fresh temporary password for the user.
func (c *Client) ResetPassword(ctx context.Context, userID int) (*PasswordReset, error) {
	if userID <= 0 {
		return nil, apierr.Validation("a user id is required")
	}
	return gateway.JSON[PasswordReset](ctx, c.gw, http.MethodPost, fmt.Sprintf("/admin/usuarios/%d/reset-password", userID), nil)
}

// ---- teams ----

func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	out, err := gateway.JSON[[]Team](ctx, c.gw, http.MethodGet, "/admin/equipos", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) CreateTeam(ctx context.Context, name string, active bool) (*Team, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return nil, apierr.Validation("team name must be at least 2 characters")
	}
	act := 0
	if active {
		act = 1
	}
	return gateway.JSON[Team](ctx, c.gw, http.MethodPost, "/admin/equipos", map[string]any{"nombre": name, "activo": act})
}

func (c *Client) UpdateTeam(ctx context.Context, id int, name *string, active *int) (*Team, error) {
	if id <= 0 {
		return nil, apierr.Validation("a team id is required")
	}
	body := map[string]any{}
	if name != nil {
		body["nombre"] = strings.TrimSpace(*name)
	}
	if active != nil {
		body["activo"] = *active
	}
	return gateway.JSON[Team](ctx, c.gw, http.MethodPatch, fmt.Sprintf("/admin/equipos/%d", id), body)
}
