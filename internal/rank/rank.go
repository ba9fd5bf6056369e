// Package rank turns a raw process list into the top-N display ranking.
package rank

import (
	"math"
	"sort"
	"strings"

	"github.com/Dicklesworthstone/sysmon/internal/config"
	"github.com/Dicklesworthstone/sysmon/internal/model"
)

// Policy controls filtering and truncation.
type Policy struct {
	TopN              int
	ExcludedNameTerms []string
	MinCPUShare       float64
}

// PolicyFrom lifts the ranking fields out of a poll config.
func PolicyFrom(p config.Poll) Policy {
	return Policy{
		TopN:              p.TopN,
		ExcludedNameTerms: p.ExcludedNameTerms,
		MinCPUShare:       p.MinCPUShare,
	}
}

// Processes drops idle and excluded rows, sorts by CPU descending keeping
// provider order on ties, and keeps the first TopN. The input is not modified.
func Processes(procs []model.ProcessSample, policy Policy) []model.ProcessSample {
	terms := lowerTerms(policy.ExcludedNameTerms)
	minCPU := policy.MinCPUShare
	if minCPU < 0 {
		minCPU = 0
	}

	out := make([]model.ProcessSample, 0, len(procs))
	for _, p := range procs {
		if math.IsNaN(p.CPU) || p.CPU <= minCPU {
			continue
		}
		if excluded(p.Name, terms) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CPU > out[j].CPU })
	if policy.TopN >= 0 && len(out) > policy.TopN {
		out = out[:policy.TopN]
	}
	return out
}

func excluded(name string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(name)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func lowerTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
