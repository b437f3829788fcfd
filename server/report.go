package server

import (
	"time"

	"github.com/mscno/ghsync/pkg/githubapi"
	"github.com/mscno/ghsync/server/model"
)

// UnitStatus is the outcome of one unit of work in a run.
type UnitStatus string

const (
	UnitOK       UnitStatus = "ok"
	UnitEmpty    UnitStatus = "empty"
	UnitDegraded UnitStatus = "degraded"
)

// UnitResult reports one listing-and-store step, e.g. the commits of one repository.
type UnitResult struct {
	Kind    model.Kind
	Scope   string
	Status  UnitStatus
	Fetched int
	Stored  int
	Failed  int
	Reason  string
}

// RunReport is the structured outcome of a synchronization run.
type RunReport struct {
	UserID        model.UserId
	Strategy      githubapi.Strategy
	StartedAt     time.Time
	FinishedAt    time.Time
	Organizations int
	Repositories  int
	Units         []UnitResult
	// Err is set when the run aborted.
	Err error
}

func (r *RunReport) Fatal() bool {
	return r.Err != nil
}

// Outcome is "fatal", "degraded" or "ok".
func (r *RunReport) Outcome() string {
	if r.Fatal() {
		return "fatal"
	}
	for _, u := range r.Units {
		if u.Status == UnitDegraded {
			return "degraded"
		}
	}
	return "ok"
}

// Degraded returns the units that failed fully or partially.
func (r *RunReport) Degraded() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.Status == UnitDegraded {
			out = append(out, u)
		}
	}
	return out
}

// Stored sums stored records per collection.
func (r *RunReport) Stored() map[string]int {
	out := make(map[string]int)
	for _, u := range r.Units {
		if u.Stored > 0 {
			out[u.Kind.Collection()] += u.Stored
		}
	}
	return out
}

func (r *RunReport) Summary() model.RunSummary {
	s := model.RunSummary{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Strategy:   string(r.Strategy),
		Fatal:      r.Fatal(),
		Records:    r.Stored(),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	for _, u := range r.Units {
		switch u.Status {
		case UnitOK:
			s.Succeeded++
		case UnitEmpty:
			s.Empty++
		case UnitDegraded:
			s.Degraded++
		}
	}
	return s
}
