package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dicklesworthstone/sysmon/internal/history"
	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/poll"
	"github.com/Dicklesworthstone/sysmon/internal/publish"
	"github.com/Dicklesworthstone/sysmon/internal/sampler"
)

type fakeInfo struct{}

func (fakeInfo) StaticInfo(context.Context) (model.StaticInfo, error) {
	return model.StaticInfo{CPUModel: "Test CPU", OS: "linux", TotalMemoryGB: 8}, nil
}

type fakeTerminator struct{ last int32 }

func (f *fakeTerminator) Terminate(_ context.Context, pid int32) (bool, error) {
	f.last = pid
	if pid == 1 {
		return false, sampler.ErrInvalidPID
	}
	return true, nil
}

type fakeSession struct{}

func (fakeSession) ID() string        { return "s-1" }
func (fakeSession) State() poll.State { return poll.StateRunning }
func (fakeSession) Stats() poll.Stats { return poll.Stats{FastTicks: 3, Published: 2} }

func newTestServer(t *testing.T) (*Server, Deps, *fakeTerminator) {
	t.Helper()
	term := &fakeTerminator{}
	deps := Deps{
		Broker:     publish.NewBroker(nil),
		History:    history.NewTracker(5),
		Info:       fakeInfo{},
		Terminator: term,
		Session:    fakeSession{},
	}
	t.Cleanup(deps.Broker.Close)
	return NewServer("127.0.0.1:0", deps, nil), deps, term
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestSnapshotNoContentUntilPublished(t *testing.T) {
	s, deps, _ := newTestServer(t)
	if rec := do(t, s, http.MethodGet, "/api/v1/snapshot"); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	deps.Broker.Publish(model.Snapshot{CPUUsage: 0.5, TopProcesses: []model.ProcessSample{}})
	rec := do(t, s, http.MethodGet, "/api/v1/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"cpuUsage", "ramUsage", "storageUsage", "topProcesses"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %q in %s", key, rec.Body.String())
		}
	}
}

func TestStaticAndHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/static")
	var info model.StaticInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil || info.CPUModel != "Test CPU" {
		t.Fatalf("static = %s (%v)", rec.Body.String(), err)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/health")
	var health struct {
		Status  string `json:"status"`
		Session struct {
			ID    string `json:"id"`
			State string `json:"state"`
			Stats struct {
				FastTicks int64 `json:"fastTicks"`
			} `json:"stats"`
		} `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Session.State != "running" || health.Session.Stats.FastTicks != 3 {
		t.Fatalf("health = %s", rec.Body.String())
	}
}

func TestHistory(t *testing.T) {
	s, deps, _ := newTestServer(t)
	deps.History.Observe(model.Snapshot{CPUUsage: 0.5, RAMUsage: 0.25, Timestamp: time.Unix(100, 0)})

	rec := do(t, s, http.MethodGet, "/api/v1/history")
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.CPU) != 1 || resp.CPU[0].Value != 50 || resp.RAM[0].Value != 25 || len(resp.Storage) != 1 {
		t.Fatalf("history = %s", rec.Body.String())
	}
}

func TestTerminate(t *testing.T) {
	s, _, term := newTestServer(t)
	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/processes/4242/terminate", http.StatusOK},
		{"/api/v1/processes/abc/terminate", http.StatusBadRequest},
		{"/api/v1/processes/-3/terminate", http.StatusBadRequest},
		{"/api/v1/processes/1/terminate", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, tt.path); rec.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
	if term.last != 1 {
		t.Fatalf("last pid = %d", term.last)
	}
}

func TestStreamSendsEvents(t *testing.T) {
	s, deps, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	deps.Broker.Publish(model.Snapshot{CPUUsage: 0.1, TopProcesses: []model.ProcessSample{}})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	readEvent := func() float64 {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snap model.Snapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
				t.Fatalf("bad event %q: %v", line, err)
			}
			return snap.CPUUsage
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return 0
	}

	got := []float64{readEvent()}
	deps.Broker.Publish(model.Snapshot{CPUUsage: 0.2, TopProcesses: []model.ProcessSample{}})
	deps.Broker.Publish(model.Snapshot{CPUUsage: 0.3, TopProcesses: []model.ProcessSample{}})
	got = append(got, readEvent(), readEvent())
	if len(got) != 3 || got[0] != 0.1 || got[1] != 0.2 || got[2] != 0.3 {
		t.Fatalf("events = %v, want the latest once then each publish", got)
	}
}
