package rank

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/sysmon/internal/config"
	"github.com/Dicklesworthstone/sysmon/internal/model"
)

func pids(rows []model.ProcessSample) []int32 {
	out := make([]int32, len(rows))
	for i, r := range rows {
		out[i] = r.PID
	}
	return out
}

func TestProcessesScenario(t *testing.T) {
	input := []model.ProcessSample{
		{PID: 1, Name: "idle_task", CPU: 50},
		{PID: 2, Name: "chrome", CPU: 30},
		{PID: 3, Name: "build", CPU: 45},
		{PID: 4, Name: "zero", CPU: 0},
	}
	got := Processes(input, Policy{TopN: 2, ExcludedNameTerms: []string{"idle"}})
	if want := []int32{3, 2}; !reflect.DeepEqual(pids(got), want) {
		t.Fatalf("ranked pids = %v, want %v", pids(got), want)
	}
	if got[0].CPU != 45 || got[1].CPU != 30 {
		t.Fatalf("unexpected cpu values: %+v", got)
	}
}

func TestProcessesEdgeCases(t *testing.T) {
	cases := []struct {
		name   string
		input  []model.ProcessSample
		policy Policy
		want   []int32
	}{
		{
			name:   "empty input",
			input:  nil,
			policy: Policy{TopN: 5},
			want:   []int32{},
		},
		{
			name:   "topN larger than filtered list",
			input:  []model.ProcessSample{{PID: 1, Name: "a", CPU: 1}, {PID: 2, Name: "b", CPU: 2}},
			policy: Policy{TopN: 10},
			want:   []int32{2, 1},
		},
		{
			name: "case-insensitive substring match",
			input: []model.ProcessSample{
				{PID: 1, Name: "SystemUIServer", CPU: 9},
				{PID: 2, Name: "kworker/0:1", CPU: 8},
				{PID: 3, Name: "postgres", CPU: 7},
			},
			policy: Policy{TopN: 10, ExcludedNameTerms: []string{"SYSTEM", "KWorker"}},
			want:   []int32{3},
		},
		{
			name: "ties keep provider order",
			input: []model.ProcessSample{
				{PID: 7, Name: "a", CPU: 5},
				{PID: 3, Name: "b", CPU: 5},
				{PID: 9, Name: "c", CPU: 6},
				{PID: 1, Name: "d", CPU: 5},
			},
			policy: Policy{TopN: 10},
			want:   []int32{9, 7, 3, 1},
		},
		{
			name:   "duplicate pids are distinct rows",
			input:  []model.ProcessSample{{PID: 5, Name: "x", CPU: 1}, {PID: 5, Name: "x", CPU: 2}},
			policy: Policy{TopN: 10},
			want:   []int32{5, 5},
		},
		{
			name:   "min cpu share threshold",
			input:  []model.ProcessSample{{PID: 1, Name: "a", CPU: 0.5}, {PID: 2, Name: "b", CPU: 1.5}},
			policy: Policy{TopN: 10, MinCPUShare: 1},
			want:   []int32{2},
		},
		{
			name:   "blank exclusion term matches nothing",
			input:  []model.ProcessSample{{PID: 1, Name: "a", CPU: 1}},
			policy: Policy{TopN: 10, ExcludedNameTerms: []string{"  "}},
			want:   []int32{1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Processes(tc.input, tc.policy)
			if !reflect.DeepEqual(pids(got), tc.want) {
				t.Fatalf("pids = %v, want %v", pids(got), tc.want)
			}
		})
	}
}

func TestProcessesDoesNotMutateInput(t *testing.T) {
	input := []model.ProcessSample{{PID: 1, Name: "a", CPU: 1}, {PID: 2, Name: "b", CPU: 2}}
	before := append([]model.ProcessSample(nil), input...)
	Processes(input, Policy{TopN: 1})
	if !reflect.DeepEqual(input, before) {
		t.Fatalf("input mutated: %+v", input)
	}
}

func TestProcessesInvariantsOnRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"idle", "chrome", "IdleWorker", "make", "go", "node"}
	policy := Policy{TopN: 4, ExcludedNameTerms: []string{"idle"}}
	for round := 0; round < 200; round++ {
		n := rng.Intn(20)
		input := make([]model.ProcessSample, n)
		for i := range input {
			input[i] = model.ProcessSample{
				PID:  int32(rng.Intn(50) + 1),
				Name: names[rng.Intn(len(names))],
				CPU:  float64(rng.Intn(5)), // coarse to force ties
			}
		}
		got := Processes(input, policy)
		if len(got) > policy.TopN {
			t.Fatalf("round %d: %d rows exceeds topN", round, len(got))
		}
		for i, row := range got {
			if row.CPU <= 0 {
				t.Fatalf("round %d: idle row survived: %+v", round, row)
			}
			if strings.Contains(strings.ToLower(row.Name), "idle") {
				t.Fatalf("round %d: excluded row survived: %+v", round, row)
			}
			if i > 0 && got[i-1].CPU < row.CPU {
				t.Fatalf("round %d: not sorted descending: %+v", round, got)
			}
		}
		if !reflect.DeepEqual(got, Processes(input, policy)) {
			t.Fatalf("round %d: ranking not deterministic", round)
		}
	}
}

func TestPolicyFrom(t *testing.T) {
	p := config.DefaultPoll()
	p.TopN = 3
	p.MinCPUShare = 0.25
	got := PolicyFrom(p)
	if got.TopN != 3 || got.MinCPUShare != 0.25 || len(got.ExcludedNameTerms) != len(config.DefaultExcludedNameTerms) {
		t.Fatalf("unexpected policy: %+v", got)
	}
}
