package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSynthesizeStatesIsDeterministic(t *testing.T) {
	start := time.Date(2025, time.March, 10, 4, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)

	first := synthesizeStates("mill-01", start, end)
	second := synthesizeStates("mill-01", start, end)
	if len(first) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("slot %d differs between calls", i)
		}
		if first[i].Timestamp.Before(start) || first[i].Timestamp.After(end) {
			t.Fatalf("slot %d outside range: %s", i, first[i].Timestamp)
		}
	}
	if synthesizeStates("mill-01", end, start) != nil {
		t.Fatalf("inverted range should yield nothing")
	}
}

func TestRouterServesCorePaths(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/machines")
	if err != nil {
		t.Fatalf("machines: %v", err)
	}
	var machines struct {
		Machines []machine `json:"machines"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&machines); err != nil {
		t.Fatalf("decode machines: %v", err)
	}
	resp.Body.Close()
	if len(machines.Machines) != len(fleet) {
		t.Fatalf("expected %d machines, got %d", len(fleet), len(machines.Machines))
	}

	body := `{"machine_id":"lathe-01","start":"2025-03-10T04:00:00Z","end":"2025-03-10T10:00:00Z"}`
	resp, err = http.Post(srv.URL+"/api/v1/machines/states/by-machine", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	var states struct {
		States []stateRecord `json:"states"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	resp.Body.Close()
	if len(states.States) == 0 || states.States[0].MachineID != "lathe-01" {
		t.Fatalf("unexpected states: %+v", states.States)
	}

	resp, err = http.Post(srv.URL+"/api/v1/machines/states/by-machine", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without machine_id, got %d", resp.StatusCode)
	}
}
