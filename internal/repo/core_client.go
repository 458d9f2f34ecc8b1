package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/miradorstack/mirador-utilization/internal/cache"
	"github.com/miradorstack/mirador-utilization/internal/models"
)

const machinesCacheKey = "mirador-utilization:machines:v1"

// CorePaths lists the mirador-core endpoints the client talks to.
type CorePaths struct {
	States        string
	MachineStates string
	Machines      string
	Alarms        string
}

// DefaultCorePaths returns the stock mirador-core route layout.
func DefaultCorePaths() CorePaths {
	return CorePaths{
		States:        "/api/v1/machines/states/search",
		MachineStates: "/api/v1/machines/states/by-machine",
		Machines:      "/api/v1/machines",
		Alarms:        "/api/v1/machines/alarms/search",
	}
}

// CoreClient reads machine states, machines and alarms from mirador-core. It serves
// the engine as event store, machine directory and alarm directory.
type CoreClient struct {
	baseURL     string
	paths       CorePaths
	httpClient  *http.Client
	cache       cache.Provider
	machinesTTL time.Duration
	logger      *slog.Logger
}

// NewCoreClient constructs a client targeting the configured mirador-core instance.
// The machine list is cached for machinesTTL when it is positive.
func NewCoreClient(baseURL string, paths CorePaths, timeout time.Duration, cacheProvider cache.Provider, machinesTTL time.Duration, logger *slog.Logger) *CoreClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if machinesTTL < 0 {
		machinesTTL = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultCorePaths()
	paths.States = firstNonEmpty(paths.States, defaults.States)
	paths.MachineStates = firstNonEmpty(paths.MachineStates, defaults.MachineStates)
	paths.Machines = firstNonEmpty(paths.Machines, defaults.Machines)
	paths.Alarms = firstNonEmpty(paths.Alarms, defaults.Alarms)
	return &CoreClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		paths:       paths,
		httpClient:  &http.Client{Timeout: timeout},
		cache:       cacheProvider,
		machinesTTL: machinesTTL,
		logger:      logger,
	}
}

type coreState struct {
	ID         string    `json:"id"`
	MachineID  string    `json:"machine_id"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state"`
	Controller string    `json:"controller_mode"`
	Execution  string    `json:"execution_status"`
	Program    string    `json:"program"`
	Tool       string    `json:"tool"`
}

func (s coreState) model() models.StateEvent {
	return models.StateEvent{
		ID:         s.ID,
		MachineID:  s.MachineID,
		Timestamp:  s.Timestamp,
		State:      s.State,
		Controller: s.Controller,
		Execution:  s.Execution,
		Program:    s.Program,
		Tool:       s.Tool,
	}
}

type statesResponse struct {
	States []coreState `json:"states"`
}

// StatesByDateRange returns every state event recorded within [start, end].
func (c *CoreClient) StatesByDateRange(ctx context.Context, start, end time.Time) ([]models.StateEvent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"start": start.UTC().Format(time.RFC3339Nano),
		"end":   end.UTC().Format(time.RFC3339Nano),
	}
	var response statesResponse
	if err := c.postJSON(ctx, c.resolvePath(c.paths.States), payload, &response); err != nil {
		return nil, fmt.Errorf("mirador-core states request failed: %w", err)
	}
	return toStateEvents(response.States), nil
}

// StatesByMachine returns the state events of one machine within [start, end].
func (c *CoreClient) StatesByMachine(ctx context.Context, machineID string, start, end time.Time) ([]models.StateEvent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"machine_id": machineID,
		"start":      start.UTC().Format(time.RFC3339Nano),
		"end":        end.UTC().Format(time.RFC3339Nano),
	}
	var response statesResponse
	if err := c.postJSON(ctx, c.resolvePath(c.paths.MachineStates), payload, &response); err != nil {
		return nil, fmt.Errorf("mirador-core machine states request failed: %w", err)
	}
	return toStateEvents(response.States), nil
}

// ListMachines returns the machine directory, served from cache when possible.
func (c *CoreClient) ListMachines(ctx context.Context) ([]models.Machine, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if c.machinesTTL > 0 {
		if data, err := c.cache.Get(ctx, machinesCacheKey); err == nil {
			var cached []models.Machine
			if err := msgpack.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
			c.logger.Warn("discarding undecodable machine cache entry")
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("machine cache read failed", slog.Any("error", err))
		}
	}

	var response struct {
		Machines []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"machines"`
	}
	if err := c.getJSON(ctx, c.resolvePath(c.paths.Machines), &response); err != nil {
		return nil, fmt.Errorf("mirador-core machines request failed: %w", err)
	}
	machines := make([]models.Machine, 0, len(response.Machines))
	for _, m := range response.Machines {
		machines = append(machines, models.Machine{ID: m.ID, Name: m.Name, Type: m.Type})
	}

	if c.machinesTTL > 0 && len(machines) > 0 {
		if payload, err := msgpack.Marshal(machines); err == nil {
			_ = c.cache.Set(ctx, machinesCacheKey, payload, c.machinesTTL)
		}
	}
	return machines, nil
}

// ListAlarms returns alarms raised within [start, end].
func (c *CoreClient) ListAlarms(ctx context.Context, start, end time.Time) ([]models.Alarm, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"start": start.UTC().Format(time.RFC3339Nano),
		"end":   end.UTC().Format(time.RFC3339Nano),
	}
	var response struct {
		Alarms []struct {
			ID        string    `json:"id"`
			MachineID string    `json:"machine_id"`
			Timestamp time.Time `json:"timestamp"`
			Type      string    `json:"type"`
			Severity  string    `json:"severity"`
			Message   string    `json:"message"`
			Resolved  bool      `json:"resolved"`
		} `json:"alarms"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.paths.Alarms), payload, &response); err != nil {
		return nil, fmt.Errorf("mirador-core alarms request failed: %w", err)
	}
	alarms := make([]models.Alarm, 0, len(response.Alarms))
	for _, a := range response.Alarms {
		alarms = append(alarms, models.Alarm{
			ID:        a.ID,
			MachineID: a.MachineID,
			Timestamp: a.Timestamp,
			Type:      a.Type,
			Severity:  a.Severity,
			Message:   a.Message,
			Resolved:  a.Resolved,
		})
	}
	return alarms, nil
}

func toStateEvents(states []coreState) []models.StateEvent {
	events := make([]models.StateEvent, 0, len(states))
	for _, s := range states {
		events = append(events, s.model())
	}
	return events
}

func (c *CoreClient) ready() error {
	if c == nil {
		return fmt.Errorf("mirador-core client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("mirador-core base URL not configured")
	}
	return nil
}

func (c *CoreClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *CoreClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), out)
}

func (c *CoreClient) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *CoreClient) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirador-core returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
