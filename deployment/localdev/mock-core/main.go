package main

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// eventNamespace keeps synthetic event ids stable across restarts.
var eventNamespace = uuid.MustParse("6f1c2a8e-3d4b-4e8f-9a51-0c7d2e9b4f10")

type machine struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type stateRecord struct {
	ID         string    `json:"id"`
	MachineID  string    `json:"machine_id"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state"`
	Controller string    `json:"controller_mode"`
	Execution  string    `json:"execution_status"`
	Program    string    `json:"program,omitempty"`
}

type alarmRecord struct {
	ID        string    `json:"id"`
	MachineID string    `json:"machine_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
}

type rangeQuery struct {
	MachineID string    `json:"machine_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

var fleet = []machine{
	{ID: "lathe-01", Name: "Okuma LB3000", Type: "lathe"},
	{ID: "lathe-02", Name: "Okuma LB3000 #2", Type: "lathe"},
	{ID: "mill-01", Name: "Haas VF-2", Type: "mill"},
	{ID: "mill-02", Name: "DMG Mori NVX", Type: "mill"},
	{ID: "grinder-01", Name: "Studer S33", Type: ""},
}

// cycle is the sequence of states a machine walks through, one step per slot.
var cycle = []struct {
	state      string
	controller string
	execution  string
}{
	{"SETUP", "MANUAL", "READY"},
	{"ACTIVE", "AUTOMATIC", "ACTIVE"},
	{"ACTIVE", "AUTOMATIC", "ACTIVE"},
	{"IDLE", "AUTOMATIC", "READY"},
	{"ACTIVE", "AUTOMATIC", "ACTIVE"},
	{"ALARM", "AUTOMATIC", "INTERRUPTED"},
	{"STOPPED", "MANUAL", "STOPPED"},
}

const slot = 45 * time.Minute

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	addr := ":8080"
	if v := os.Getenv("MOCK_CORE_ADDRESS"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("core mock listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api/v1/machines", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"machines": fleet})
		})
		r.Post("/states/search", func(w http.ResponseWriter, r *http.Request) {
			q, ok := decodeRange(w, r)
			if !ok {
				return
			}
			states := make([]stateRecord, 0)
			for _, m := range fleet {
				states = append(states, synthesizeStates(m.ID, q.Start, q.End)...)
			}
			writeJSON(w, map[string]any{"states": states})
		})
		r.Post("/states/by-machine", func(w http.ResponseWriter, r *http.Request) {
			q, ok := decodeRange(w, r)
			if !ok {
				return
			}
			if q.MachineID == "" {
				http.Error(w, "machine_id is required", http.StatusBadRequest)
				return
			}
			writeJSON(w, map[string]any{"states": synthesizeStates(q.MachineID, q.Start, q.End)})
		})
		r.Post("/alarms/search", func(w http.ResponseWriter, r *http.Request) {
			q, ok := decodeRange(w, r)
			if !ok {
				return
			}
			alarms := make([]alarmRecord, 0)
			for _, m := range fleet {
				for _, s := range synthesizeStates(m.ID, q.Start, q.End) {
					if s.State != "ALARM" {
						continue
					}
					alarms = append(alarms, alarmRecord{
						ID:        uuid.NewSHA1(eventNamespace, []byte("alarm/"+s.ID)).String(),
						MachineID: s.MachineID,
						Timestamp: s.Timestamp,
						Type:      "spindle_overload",
						Severity:  "high",
						Message:   "spindle load above threshold",
						Resolved:  s.Timestamp.Before(time.Now().Add(-time.Hour)),
					})
				}
			}
			writeJSON(w, map[string]any{"alarms": alarms})
		})
	})
	return r
}

// synthesizeStates emits one event per slot in [start, end]. Each machine gets its
// own phase so the fleet does not move in lockstep, and nothing is emitted past now.
func synthesizeStates(machineID string, start, end time.Time) []stateRecord {
	if end.Before(start) {
		return nil
	}
	if now := time.Now().UTC(); end.After(now) {
		end = now
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(machineID))
	phase := int(h.Sum32() % uint32(len(cycle)))

	first := start.UTC().Truncate(slot)
	if first.Before(start) {
		first = first.Add(slot)
	}
	var out []stateRecord
	for ts := first; !ts.After(end); ts = ts.Add(slot) {
		step := cycle[(int(ts.Unix()/int64(slot.Seconds()))+phase)%len(cycle)]
		out = append(out, stateRecord{
			ID:         uuid.NewSHA1(eventNamespace, []byte(machineID+"/"+ts.Format(time.RFC3339))).String(),
			MachineID:  machineID,
			Timestamp:  ts,
			State:      step.state,
			Controller: step.controller,
			Execution:  step.execution,
			Program:    "O1000",
		})
	}
	return out
}

func decodeRange(w http.ResponseWriter, r *http.Request) (rangeQuery, bool) {
	var q rangeQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return q, false
	}
	return q, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}
