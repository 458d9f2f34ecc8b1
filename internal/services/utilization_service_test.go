package services

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-utilization/internal/api"
	"github.com/miradorstack/mirador-utilization/internal/config"
	"github.com/miradorstack/mirador-utilization/internal/engine"
	"github.com/miradorstack/mirador-utilization/internal/models"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

type stubEngine struct {
	overview  models.UtilizationOverview
	timelines []models.MachineTimeline
	err       error
	block     bool

	lastReq     models.OverviewRequest
	lastMachine string
}

func (s *stubEngine) StateOverview(ctx context.Context, req models.OverviewRequest) (models.UtilizationOverview, error) {
	s.lastReq = req
	if s.block {
		<-ctx.Done()
		return models.UtilizationOverview{}, utils.NewDependencyError("event store", ctx.Err())
	}
	return s.overview, s.err
}

func (s *stubEngine) StateTimeline(ctx context.Context, start, end time.Time) ([]models.MachineTimeline, error) {
	return s.timelines, s.err
}

func (s *stubEngine) MachineTimeline(ctx context.Context, machineID string, start, end time.Time) (models.MachineTimeline, error) {
	s.lastMachine = machineID
	if s.err != nil {
		return models.MachineTimeline{}, s.err
	}
	return models.MachineTimeline{MachineID: machineID, MachineName: "Lathe", Timeline: []models.TimelineEntry{}}, nil
}

type recordingReporter struct {
	operations []string
	errs       []error
}

func (r *recordingReporter) Report(_ context.Context, operation string, err error) {
	r.operations = append(r.operations, operation)
	r.errs = append(r.errs, err)
}

func rangeRequest(t *testing.T, extra map[string]any) *structpb.Struct {
	t.Helper()
	fields := map[string]any{"start_date": "2025-03-10", "end_date": "2025-03-10"}
	for k, v := range extra {
		fields[k] = v
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestGetStateOverviewValidatesInput(t *testing.T) {
	eng := &stubEngine{}
	reporter := &recordingReporter{}
	service := NewUtilizationService(nil, eng, time.Second, reporter)

	if _, err := service.GetStateOverview(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for nil request, got %v", err)
	}

	req, _ := structpb.NewStruct(map[string]any{"start_date": "2025-03-10"})
	if _, err := service.GetStateOverview(context.Background(), req); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing end_date, got %v", err)
	}

	_, err := service.GetStateOverview(context.Background(), rangeRequest(t, map[string]any{"view": "shift"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for unknown view, got %v", err)
	}
	if len(reporter.operations) != 0 {
		t.Fatalf("validation failures must not be reported, got %v", reporter.operations)
	}
}

func TestGetStateOverviewPassesParsedRequest(t *testing.T) {
	util := 42.5
	eng := &stubEngine{overview: models.UtilizationOverview{
		Scale:       models.ScaleHourly,
		View:        models.ViewGroup,
		KPIs:        models.KPIs{Utilization: 42.5},
		Utilization: []models.UtilizationPoint{{Label: "12:00 AM", Utilization: &util}, {Label: "1:00 AM"}},
		States:      []models.StateShare{},
		Machines:    []models.Machine{},
		Alarms:      []models.Alarm{},
	}}
	service := NewUtilizationService(nil, eng, time.Second, nil)

	resp, err := service.GetStateOverview(context.Background(), rangeRequest(t, map[string]any{"view": "GROUP"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.lastReq.View != models.ViewGroup {
		t.Fatalf("expected group view, got %q", eng.lastReq.View)
	}
	if got := resp.GetFields()["scale"].GetStringValue(); got != string(models.ScaleHourly) {
		t.Fatalf("expected hourly scale, got %q", got)
	}
	points := resp.GetFields()["utilization"].GetListValue().GetValues()
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if _, isNull := points[1].GetStructValue().GetFields()["utilization"].GetKind().(*structpb.Value_NullValue); !isNull {
		t.Fatalf("future bucket should serialize as null")
	}
	if service.latencies.Count() != 1 {
		t.Fatalf("expected one latency sample, got %d", service.latencies.Count())
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		code     codes.Code
		reported bool
	}{
		{"invalid event", &utils.InvalidEventError{MachineID: "M1", EventID: "e-1", Reason: "missing state"}, codes.FailedPrecondition, true},
		{"dependency", utils.NewDependencyError("event store", errors.New("connection refused")), codes.Unavailable, true},
		{"canceled", utils.NewDependencyError("event store", context.Canceled), codes.Canceled, false},
		{"internal", errors.New("boom"), codes.Internal, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reporter := &recordingReporter{}
			service := NewUtilizationService(nil, &stubEngine{err: tc.err}, time.Second, reporter)

			_, err := service.GetStateTimeline(context.Background(), rangeRequest(t, nil))
			if status.Code(err) != tc.code {
				t.Fatalf("expected %v, got %v", tc.code, err)
			}
			if got := len(reporter.operations) == 1; got != tc.reported {
				t.Fatalf("reported=%v, want %v", got, tc.reported)
			}
			if tc.reported && reporter.operations[0] != opStateTimeline {
				t.Fatalf("unexpected operation %q", reporter.operations[0])
			}
		})
	}
}

func TestGetStateOverviewDeadlineExceeded(t *testing.T) {
	reporter := &recordingReporter{}
	service := NewUtilizationService(nil, &stubEngine{block: true}, 10*time.Millisecond, reporter)

	_, err := service.GetStateOverview(context.Background(), rangeRequest(t, nil))
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded even through a dependency error, got %v", err)
	}
	if len(reporter.operations) != 0 {
		t.Fatalf("timeouts should not be reported, got %v", reporter.operations)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	service := NewUtilizationService(nil, &stubEngine{err: errors.New("pool exhausted at 10.0.0.7")}, 0, nil)
	_, err := service.GetMachineTimeline(context.Background(), rangeRequest(t, map[string]any{"machine_id": "M1"}))
	if st, _ := status.FromError(err); st.Message() != "internal error" {
		t.Fatalf("expected generic message, got %q", st.Message())
	}
}

func TestGetMachineTimelineRequiresMachineID(t *testing.T) {
	eng := &stubEngine{}
	service := NewUtilizationService(nil, eng, time.Second, nil)

	if _, err := service.GetMachineTimeline(context.Background(), rangeRequest(t, nil)); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	resp, err := service.GetMachineTimeline(context.Background(), rangeRequest(t, map[string]any{"machineId": "M7"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.lastMachine != "M7" || resp.GetFields()["machineId"].GetStringValue() != "M7" {
		t.Fatalf("machine id not propagated: %q", eng.lastMachine)
	}
}

func TestServiceWithoutEngine(t *testing.T) {
	service := NewUtilizationService(nil, nil, time.Second, nil)
	if _, err := service.GetStateTimeline(context.Background(), rangeRequest(t, nil)); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

// plant serves a fixed event log, machine directory and alarm list.
type plant struct {
	events   []models.StateEvent
	machines []models.Machine
	down     bool
}

func (p plant) StatesByDateRange(context.Context, time.Time, time.Time) ([]models.StateEvent, error) {
	if p.down {
		return nil, errors.New("dial tcp: connection refused")
	}
	return p.events, nil
}

func (p plant) StatesByMachine(_ context.Context, machineID string, _, _ time.Time) ([]models.StateEvent, error) {
	var out []models.StateEvent
	for _, ev := range p.events {
		if ev.MachineID == machineID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (p plant) ListMachines(context.Context) ([]models.Machine, error) { return p.machines, nil }

func (p plant) ListAlarms(context.Context, time.Time, time.Time) ([]models.Alarm, error) {
	return []models.Alarm{}, nil
}

func startService(t *testing.T, collaborators plant) *api.UtilizationEngineClient {
	t.Helper()
	shiftStart := time.Date(2025, time.March, 10, 4, 0, 0, 0, time.UTC)
	eng, err := engine.New(engine.Config{
		Logger:   utils.NewLogger("error", true),
		Clock:    clockwork.NewFakeClockAt(shiftStart.AddDate(0, 0, 7)),
		Events:   collaborators,
		Machines: collaborators,
		Alarms:   collaborators,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	service := NewUtilizationService(utils.NewLogger("error", true), eng, 5*time.Second, nil)

	lis := bufconn.Listen(1 << 20)
	server := api.NewServerWithListener(config.ServerConfig{GracefulTimeout: time.Second}, lis, service)
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return api.NewUtilizationEngineClient(conn)
}

func TestUtilizationEngineOverGRPC(t *testing.T) {
	shiftStart := time.Date(2025, time.March, 10, 4, 0, 0, 0, time.UTC)
	client := startService(t, plant{
		events: []models.StateEvent{
			{ID: "e-2", MachineID: "M1", State: "IDLE", Timestamp: shiftStart.Add(6 * time.Hour)},
			{ID: "e-1", MachineID: "M1", State: "ACTIVE", Timestamp: shiftStart},
		},
		machines: []models.Machine{{ID: "M1", Name: "Lathe", Type: "lathe"}, {ID: "M2", Name: "Mill", Type: "mill"}},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	overview, err := client.GetStateOverview(ctx, rangeRequest(t, nil))
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	kpis := overview.GetFields()["kpis"].GetStructValue().GetFields()
	if got := kpis["utilization"].GetNumberValue(); got < 24.99 || got > 25.01 {
		t.Fatalf("expected 25%% utilization, got %v", got)
	}
	if got := len(overview.GetFields()["utilization"].GetListValue().GetValues()); got != 24 {
		t.Fatalf("expected 24 hourly buckets, got %d", got)
	}

	timelines, err := client.GetStateTimeline(ctx, rangeRequest(t, nil))
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if got := len(timelines.GetFields()["timelines"].GetListValue().GetValues()); got != 2 {
		t.Fatalf("expected a timeline per machine, got %d", got)
	}

	single, err := client.GetMachineTimeline(ctx, rangeRequest(t, map[string]any{"machine_id": "M1"}))
	if err != nil {
		t.Fatalf("machine timeline: %v", err)
	}
	entries := single.GetFields()["timeline"].GetListValue().GetValues()
	if len(entries) != 2 || entries[0].GetStructValue().GetFields()["state"].GetStringValue() != string(models.StateActive) {
		t.Fatalf("unexpected machine timeline: %v", entries)
	}
}

func TestUtilizationEngineOverGRPCDependencyDown(t *testing.T) {
	client := startService(t, plant{down: true, machines: []models.Machine{{ID: "M1"}}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.GetStateOverview(ctx, rangeRequest(t, nil))
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}
