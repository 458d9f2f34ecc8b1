package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-utilization/internal/api"
	"github.com/miradorstack/mirador-utilization/internal/metrics"
	"github.com/miradorstack/mirador-utilization/internal/models"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

const (
	opStateOverview   = "state_overview"
	opStateTimeline   = "state_timeline"
	opMachineTimeline = "machine_timeline"
)

// Engine is the computation surface the service exposes over gRPC.
type Engine interface {
	StateOverview(ctx context.Context, req models.OverviewRequest) (models.UtilizationOverview, error)
	StateTimeline(ctx context.Context, start, end time.Time) ([]models.MachineTimeline, error)
	MachineTimeline(ctx context.Context, machineID string, start, end time.Time) (models.MachineTimeline, error)
}

// UtilizationService implements the gRPC UtilizationEngine service.
type UtilizationService struct {
	logger    *slog.Logger
	engine    Engine
	timeout   time.Duration
	reporter  ErrorReporter
	latencies *utils.LatencyTracker
}

// NewUtilizationService constructs the service facade. A non-positive timeout leaves
// the caller deadline untouched.
func NewUtilizationService(logger *slog.Logger, engine Engine, timeout time.Duration, reporter ErrorReporter) *UtilizationService {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &UtilizationService{
		logger:    logger,
		engine:    engine,
		timeout:   timeout,
		reporter:  reporter,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// GetStateOverview computes KPIs, the bucketed series and the state distribution.
func (s *UtilizationService) GetStateOverview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ready(req); err != nil {
		return nil, err
	}
	started := time.Now()
	domainReq, err := api.FromOverviewRequest(req)
	if err != nil {
		return nil, s.fail(ctx, opStateOverview, started, err)
	}
	s.logger.Debug("GetStateOverview called",
		slog.Time("start", domainReq.Start), slog.Time("end", domainReq.End), slog.String("view", string(domainReq.View)))

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	overview, err := s.engine.StateOverview(ctx, domainReq)
	if err != nil {
		return nil, s.fail(ctx, opStateOverview, started, err)
	}
	doc, err := api.ToOverviewStruct(overview)
	if err != nil {
		return nil, s.fail(ctx, opStateOverview, started, err)
	}
	s.succeed(opStateOverview, started)
	return doc, nil
}

// GetStateTimeline returns one gap-filled timeline per directory machine.
func (s *UtilizationService) GetStateTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ready(req); err != nil {
		return nil, err
	}
	started := time.Now()
	start, end, err := api.FromTimelineRequest(req)
	if err != nil {
		return nil, s.fail(ctx, opStateTimeline, started, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	timelines, err := s.engine.StateTimeline(ctx, start, end)
	if err != nil {
		return nil, s.fail(ctx, opStateTimeline, started, err)
	}
	doc, err := api.ToTimelinesStruct(timelines)
	if err != nil {
		return nil, s.fail(ctx, opStateTimeline, started, err)
	}
	s.succeed(opStateTimeline, started)
	return doc, nil
}

// GetMachineTimeline returns the timeline of a single machine.
func (s *UtilizationService) GetMachineTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ready(req); err != nil {
		return nil, err
	}
	started := time.Now()
	machineID, start, end, err := api.FromMachineTimelineRequest(req)
	if err != nil {
		return nil, s.fail(ctx, opMachineTimeline, started, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	timeline, err := s.engine.MachineTimeline(ctx, machineID, start, end)
	if err != nil {
		return nil, s.fail(ctx, opMachineTimeline, started, err)
	}
	doc, err := api.ToMachineTimelineStruct(timeline)
	if err != nil {
		return nil, s.fail(ctx, opMachineTimeline, started, err)
	}
	s.succeed(opMachineTimeline, started)
	return doc, nil
}

// LatencyP95 returns the current p95 latency of successful computations.
func (s *UtilizationService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *UtilizationService) ready(req *structpb.Struct) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.engine == nil {
		return status.Error(codes.FailedPrecondition, "engine not configured")
	}
	return nil
}

func (s *UtilizationService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *UtilizationService) succeed(operation string, started time.Time) {
	duration := time.Since(started)
	metrics.ObserveComputation(operation, duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if total := s.latencies.Total(); total >= 50 && total%50 == 0 {
		s.logger.Info("computation latency",
			slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", s.latencies.Count()))
	}
}

// fail records the failure and converts err into a gRPC status.
func (s *UtilizationService) fail(ctx context.Context, operation string, started time.Time, err error) error {
	code := statusCode(ctx, err)
	outcome := metrics.OutcomeError
	if code == codes.InvalidArgument || code == codes.FailedPrecondition {
		outcome = metrics.OutcomeInvalid
	}
	metrics.ObserveComputation(operation, time.Since(started), outcome)

	attrs := []any{slog.String("operation", operation), slog.String("code", code.String()), slog.Any("error", err)}
	switch code {
	case codes.InvalidArgument:
		s.logger.Debug("request rejected", attrs...)
		return status.Error(code, err.Error())
	case codes.DeadlineExceeded, codes.Canceled:
		s.logger.Warn("computation aborted", attrs...)
		return status.Error(code, err.Error())
	default:
		s.logger.Error("computation failed", attrs...)
		s.reporter.Report(ctx, operation, err)
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

// statusCode classifies err. A request whose deadline passed reports DeadlineExceeded
// even when the failure surfaced through a collaborator.
func statusCode(ctx context.Context, err error) codes.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case utils.IsValidation(err):
		return codes.InvalidArgument
	case utils.IsInvalidEvent(err):
		return codes.FailedPrecondition
	case utils.IsDependency(err):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
