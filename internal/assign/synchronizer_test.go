package assign

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gci-tools/reportes-console/internal/credstore"
	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

func newTestSynchronizer(t *testing.T, kind OwnerKind, routes func(r *gin.Engine)) *Synchronizer {
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
	s, err := New(logger.Nop(), gw, kind)
	if err != nil {
		t.Fatalf("synchronizer: %v", err)
	}
	return s
}

func TestToggleIsIdempotentAndInverse(t *testing.T) {
	s := newTestSynchronizer(t, OwnerUser, func(r *gin.Engine) {})

	s.Toggle(7, true)
	s.Toggle(7, true)
	if got := s.WorkingSet(); !reflect.DeepEqual(got, []int{7}) {
		t.Fatalf("working set = %v, want [7]", got)
	}
	s.Toggle(7, false)
	s.Toggle(7, false)
	if got := s.WorkingSet(); len(got) != 0 {
		t.Fatalf("working set = %v, want empty", got)
	}
}

func TestSelectOwnerLoadsServerSet(t *testing.T) {
	s := newTestSynchronizer(t, OwnerUser, func(r *gin.Engine) {
		r.GET("/admin/usuarios/:id/equipos", func(c *gin.Context) {
			c.JSON(http.StatusOK, []Candidate{{ID: 3, Name: "Riesgos"}, {ID: 9, Name: "Ventas"}})
		})
	})

	if err := s.SelectOwner(context.Background(), 12); err != nil {
		t.Fatalf("select owner: %v", err)
	}
	if got := s.WorkingSet(); !reflect.DeepEqual(got, []int{3, 9}) {
		t.Fatalf("working set = %v, want [3 9]", got)
	}
	if !s.Selected(3) || s.Selected(4) {
		t.Fatalf("selection predicate wrong")
	}
}

func TestOwnerSwitchDiscardsUnsavedToggles(t *testing.T) {
	s := newTestSynchronizer(t, OwnerUser, func(r *gin.Engine) {
		r.GET("/admin/usuarios/:id/equipos", func(c *gin.Context) {
			if c.Param("id") == "1" {
				c.JSON(http.StatusOK, []Candidate{{ID: 3, Name: "Riesgos"}})
				return
			}
			c.JSON(http.StatusOK, []Candidate{})
		})
	})

	if err := s.SelectOwner(context.Background(), 1); err != nil {
		t.Fatalf("select owner 1: %v", err)
	}
	s.Toggle(99, true) // unsaved

	if err := s.SelectOwner(context.Background(), 2); err != nil {
		t.Fatalf("select owner 2: %v", err)
	}
	if got := s.WorkingSet(); len(got) != 0 {
		t.Fatalf("unsaved toggles survived an owner switch: %v", got)
	}
}

func TestSaveSendsFullReplacementAndSurvivesReload(t *testing.T) {
	assigned := []int{5}
	putCalls := 0
	var gotPut assignmentPut
	s := newTestSynchronizer(t, OwnerReport, func(r *gin.Engine) {
		r.GET("/admin/reportes/:id/equipos", func(c *gin.Context) {
			out := make([]Candidate, 0, len(assigned))
			for _, id := range assigned {
				out = append(out, Candidate{ID: id})
			}
			c.JSON(http.StatusOK, out)
		})
		r.PUT("/admin/reportes/:id/equipos", func(c *gin.Context) {
			putCalls++
			if err := c.BindJSON(&gotPut); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
				return
			}
			assigned = gotPut.TeamIDs
			c.JSON(http.StatusOK, gin.H{"detail": "ok"})
		})
	})

	if err := s.SelectOwner(context.Background(), 8); err != nil {
		t.Fatalf("select owner: %v", err)
	}
	s.Toggle(2, true)
	s.Toggle(9, true)
	s.Toggle(5, false)

	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if putCalls != 1 {
		t.Fatalf("save made %d PUT calls, want 1", putCalls)
	}
	if !reflect.DeepEqual(gotPut.TeamIDs, []int{2, 9}) {
		t.Fatalf("PUT body = %v, want the whole working set [2 9]", gotPut.TeamIDs)
	}

	// Reloading the owner must reproduce exactly what was saved.
	if err := s.SelectOwner(context.Background(), 0); err != nil {
		t.Fatalf("reset owner: %v", err)
	}
	if err := s.SelectOwner(context.Background(), 8); err != nil {
		t.Fatalf("reload owner: %v", err)
	}
	if got := s.WorkingSet(); !reflect.DeepEqual(got, []int{2, 9}) {
		t.Fatalf("reloaded working set = %v, want [2 9]", got)
	}
}

func TestSaveWithoutOwnerIsValidationError(t *testing.T) {
	s := newTestSynchronizer(t, OwnerUser, func(r *gin.Engine) {})
	if err := s.Save(context.Background()); !apierr.IsValidation(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestFilterNeverTouchesWorkingSet(t *testing.T) {
	s := newTestSynchronizer(t, OwnerUser, func(r *gin.Engine) {
		r.GET("/admin/equipos", func(c *gin.Context) {
			c.JSON(http.StatusOK, []Candidate{
				{ID: 1, Name: "Ventas Norte"},
				{ID: 2, Name: "Ventas Sur"},
				{ID: 3, Name: "Riesgos"},
			})
		})
	})

	if _, err := s.LoadCandidates(context.Background()); err != nil {
		t.Fatalf("load candidates: %v", err)
	}
	s.Toggle(3, true)

	s.Filter("ventas")
	visible := s.VisibleCandidates()
	if len(visible) != 2 {
		t.Fatalf("visible = %+v, want the two Ventas teams", visible)
	}
	// Riesgos is hidden but must stay selected.
	if got := s.WorkingSet(); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("working set = %v after filtering, want [3]", got)
	}

	s.Filter("")
	if got := s.VisibleCandidates(); len(got) != 3 {
		t.Fatalf("clearing the filter should restore all candidates, got %+v", got)
	}
}
