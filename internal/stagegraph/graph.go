package stagegraph

import (
	"encoding/json"
	"fmt"

	"turnero/internal/models"
)

const (
	BindingStation = "station"
	BindingAgent   = "agent"
)

// Stage describes one station of the pipeline: how callers bind to it,
// which role staffs it, which upstream queues it may pull from when its own
// queue is empty, and where finished tickets go next. Admins operate every
// stage regardless of Role.
type Stage struct {
	Name      string   `json:"name"`
	Binding   string   `json:"binding"`
	Role      string   `json:"role"`
	Fallbacks []string `json:"fallbacks,omitempty"`
	Next      string   `json:"next,omitempty"`
	Branches  []string `json:"branches,omitempty"`
	Terminal  bool     `json:"terminal,omitempty"`
}

type Graph struct {
	order  []string
	stages map[string]Stage
}

// Default returns the counter topology the service ships with. Operators can
// replace it wholesale through STAGE_TOPOLOGY without touching the engine.
func Default() *Graph {
	g, err := New([]Stage{
		{Name: models.StageReception, Binding: BindingStation, Role: models.RoleBoxAgent},
		{Name: models.StageBox, Binding: BindingStation, Role: models.RoleBoxAgent,
			Fallbacks: []string{models.StageReception},
			Branches:  []string{models.StagePsico, models.StageCashier, models.StageFinal}},
		{Name: models.StagePsico, Binding: BindingAgent, Role: models.RolePsychoAgent,
			Fallbacks: []string{models.StageBox},
			Next:      models.StageCashier},
		{Name: models.StageCashier, Binding: BindingAgent, Role: models.RoleCashierAgent,
			Fallbacks: []string{models.StagePsico, models.StageBox},
			Next:      models.StageFinal},
		// The return desk is staffed by box agents.
		{Name: models.StageFinal, Binding: BindingStation, Role: models.RoleBoxAgent,
			Fallbacks: []string{models.StageCashier},
			Terminal:  true},
	})
	if err != nil {
		panic(err)
	}
	return g
}

// Parse builds a graph from a JSON array of stage definitions.
func Parse(raw []byte) (*Graph, error) {
	var stages []Stage
	if err := json.Unmarshal(raw, &stages); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	return New(stages)
}

// New validates the stage list: every stage names an operating role, every
// edge must point at a declared stage, the first stage is the entry point and
// may not declare fallbacks, and a terminal stage has no outgoing edges.
func New(stages []Stage) (*Graph, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("topology has no stages")
	}
	g := &Graph{stages: make(map[string]Stage, len(stages))}
	for _, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage with empty name")
		}
		if s.Binding != BindingStation && s.Binding != BindingAgent {
			return nil, fmt.Errorf("stage %s: unknown binding %q", s.Name, s.Binding)
		}
		if s.Role == "" {
			return nil, fmt.Errorf("stage %s: no operating role", s.Name)
		}
		if _, dup := g.stages[s.Name]; dup {
			return nil, fmt.Errorf("stage %s declared twice", s.Name)
		}
		g.stages[s.Name] = s
		g.order = append(g.order, s.Name)
	}
	entry := stages[0]
	if len(entry.Fallbacks) > 0 {
		return nil, fmt.Errorf("entry stage %s may not declare fallbacks", entry.Name)
	}
	for _, s := range stages {
		for _, fb := range s.Fallbacks {
			if _, ok := g.stages[fb]; !ok {
				return nil, fmt.Errorf("stage %s: unknown fallback %s", s.Name, fb)
			}
			if fb == s.Name {
				return nil, fmt.Errorf("stage %s: fallback to itself", s.Name)
			}
		}
		if s.Terminal {
			if s.Next != "" || len(s.Branches) > 0 {
				return nil, fmt.Errorf("terminal stage %s has outgoing edges", s.Name)
			}
			continue
		}
		if s.Next != "" && len(s.Branches) > 0 {
			return nil, fmt.Errorf("stage %s: both next and branches", s.Name)
		}
		if s.Next != "" {
			if _, ok := g.stages[s.Next]; !ok {
				return nil, fmt.Errorf("stage %s: unknown next %s", s.Name, s.Next)
			}
		}
		for _, b := range s.Branches {
			if _, ok := g.stages[b]; !ok {
				return nil, fmt.Errorf("stage %s: unknown branch %s", s.Name, b)
			}
		}
	}
	return g, nil
}

func (g *Graph) Stage(name string) (Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Stages returns stage names in pipeline order.
func (g *Graph) Stages() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// PickChain returns the ordered list of stages a call-next for the given
// stage searches: the stage's own queue first, then its fallbacks.
func (g *Graph) PickChain(name string) ([]string, bool) {
	s, ok := g.stages[name]
	if !ok {
		return nil, false
	}
	return append([]string{s.Name}, s.Fallbacks...), true
}

// DeriveTargets returns the stages a ticket finishing at the given stage may
// be forwarded to. Empty for terminal stages.
func (g *Graph) DeriveTargets(name string) []string {
	s, ok := g.stages[name]
	if !ok || s.Terminal {
		return nil
	}
	if s.Next != "" {
		return []string{s.Next}
	}
	return append([]string(nil), s.Branches...)
}

var transitionMap = map[string][]string{
	models.ActionCallNext:    {models.StatusWaiting},
	models.ActionAttend:      {models.StatusWaiting},
	models.ActionCancelClaim: {models.StatusWaiting},
	models.ActionFinish:      {models.StatusInService},
	models.ActionDerive:      {models.StatusInService},
}

// ValidTransition reports whether an action may be applied to a ticket in
// the given status. Claim ownership is checked separately.
func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
