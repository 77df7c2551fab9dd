package assign

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

// OwnerKind selects which many-to-many relation a synchronizer manages. Both
// relations (user↔team, report↔team) share the same reconciliation logic and
// differ only in the endpoint the owner id is spliced into.
type OwnerKind int

const (
	OwnerUser OwnerKind = iota
	OwnerReport
)

func (k OwnerKind) String() string {
	if k == OwnerReport {
		return "report"
	}
	return "user"
}

// Candidate is one assignable team.
type Candidate struct {
	ID   int    `json:"id"`
	Name string `json:"nombre"`
}

type assignmentPut struct {
	TeamIDs []int `json:"equipo_ids"`
}

// Synchronizer keeps a locally mutated working set of team ids for one owner
// and commits it back as a full replacement. The working set is always a
// complete candidate: toggles mutate it in place and Save sends the whole
// set, never a delta.
type Synchronizer struct {
	log  *logger.Logger
	gw   *gateway.Gateway
	kind OwnerKind

	mu         sync.Mutex
	ownerID    int
	working    map[int]bool
	candidates []Candidate
	filter     string
}

func New(log *logger.Logger, gw *gateway.Gateway, kind OwnerKind) (*Synchronizer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway required")
	}
	return &Synchronizer{
		log:     log.With("component", "AssignmentSynchronizer", "owner_kind", kind.String()),
		gw:      gw,
		kind:    kind,
		working: map[int]bool{},
	}, nil
}

func (s *Synchronizer) ownerPath(ownerID int) string {
	if s.kind == OwnerReport {
		return fmt.Sprintf("/admin/reportes/%d/equipos", ownerID)
	}
	return fmt.Sprintf("/admin/usuarios/%d/equipos", ownerID)
}

// LoadCandidates fetches the full universe of assignable teams. The result is
// cached for Filter/VisibleCandidates; both owner kinds share it.
func (s *Synchronizer) LoadCandidates(ctx context.Context) ([]Candidate, error) {
	out, err := gateway.JSON[[]Candidate](ctx, s.gw, http.MethodGet, "/admin/equipos", nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.candidates = *out
	s.mu.Unlock()
	return *out, nil
}

// SelectOwner loads the server-side assignment set for ownerID into the
// working set. An ownerID of 0 resets the working set without a network call.
// Unsaved toggles on the previous owner are discarded.
func (s *Synchronizer) SelectOwner(ctx context.Context, ownerID int) error {
	if ownerID <= 0 {
		s.mu.Lock()
		s.ownerID = 0
		s.working = map[int]bool{}
		s.mu.Unlock()
		return nil
	}
	assigned, err := gateway.JSON[[]Candidate](ctx, s.gw, http.MethodGet, s.ownerPath(ownerID), nil)
	if err != nil {
		return err
	}
	working := make(map[int]bool, len(*assigned))
	for _, c := range *assigned {
		working[c.ID] = true
	}
	s.mu.Lock()
	s.ownerID = ownerID
	s.working = working
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) OwnerID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerID
}

// Toggle includes or excludes one team in the working set. Memory only, and
// idempotent: repeating the same toggle changes nothing.
func (s *Synchronizer) Toggle(teamID int, included bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if included {
		s.working[teamID] = true
	} else {
		delete(s.working, teamID)
	}
}

// Filter narrows which candidates VisibleCandidates returns. It never touches
// the working set, so a hidden-but-selected team stays selected.
func (s *Synchronizer) Filter(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = strings.ToLower(strings.TrimSpace(text))
}

func (s *Synchronizer) VisibleCandidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter == "" {
		return append([]Candidate(nil), s.candidates...)
	}
	out := make([]Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if strings.Contains(strings.ToLower(c.Name), s.filter) {
			out = append(out, c)
		}
	}
	return out
}

// WorkingSet returns the current set as a sorted copy.
func (s *Synchronizer) WorkingSet() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedWorkingLocked()
}

func (s *Synchronizer) sortedWorkingLocked() []int {
	ids := make([]int, 0, len(s.working))
	for id := range s.working {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Selected reports whether a team is in the working set.
func (s *Synchronizer) Selected(teamID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working[teamID]
}

// Save commits the entire working set as a replacement for the selected
// owner's assignments. It asserts nothing about other relations; dependent
// views must re-query on their own.
func (s *Synchronizer) Save(ctx context.Context) error {
	s.mu.Lock()
	ownerID := s.ownerID
	ids := s.sortedWorkingLocked()
	s.mu.Unlock()
	if ownerID <= 0 {
		return apierr.Validation("select an owner before saving assignments")
	}
	_, _, err := s.gw.Call(ctx, http.MethodPut, s.ownerPath(ownerID), assignmentPut{TeamIDs: ids})
	if err != nil {
		return err
	}
	s.log.Info("assignments saved", "owner_id", ownerID, "count", len(ids))
	return nil
}
