package migrate

import (
	"strconv"
)

// UnitStats counts the issues of one (project, old milestone) unit.
type UnitStats struct {
	Project   string `json:"project"`
	Milestone string `json:"milestone"`
	Total     int    `json:"total"`
	Migrated  int    `json:"migrated"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Ambiguous int    `json:"ambiguous"`
}

// Stats summarizes one run.
type Stats struct {
	// Processed counts migrated issues across all units; it is the counter
	// compared against the maximum.
	Processed    int          `json:"processed"`
	Errors       int          `json:"errors"`
	LimitReached bool         `json:"limit_reached"`
	Units        []*UnitStats `json:"units"`
}

func (s *Stats) unit(project, milestone string) *UnitStats {
	for _, u := range s.Units {
		if u.Project == project && u.Milestone == milestone {
			return u
		}
	}
	u := &UnitStats{Project: project, Milestone: milestone}
	s.Units = append(s.Units, u)
	return u
}

// Unit returns the statistics of one unit, or nil if it was never reached.
func (s *Stats) Unit(project, milestone string) *UnitStats {
	for _, u := range s.Units {
		if u.Project == project && u.Milestone == milestone {
			return u
		}
	}
	return nil
}

// TableHeaders and TableRows lay the statistics out for a summary table.
var TableHeaders = []string{"Project", "Milestone", "Total", "Migrated", "Failed", "Skipped", "Ambiguous"}

func (s *Stats) TableRows() [][]string {
	rows := make([][]string, 0, len(s.Units))
	for _, u := range s.Units {
		rows = append(rows, []string{
			u.Project,
			u.Milestone,
			strconv.Itoa(u.Total),
			strconv.Itoa(u.Migrated),
			strconv.Itoa(u.Failed),
			strconv.Itoa(u.Skipped),
			strconv.Itoa(u.Ambiguous),
		})
	}
	return rows
}
