package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-utilization/internal/models"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

// FromOverviewRequest maps a gRPC request document into a domain OverviewRequest.
func FromOverviewRequest(req *structpb.Struct) (models.OverviewRequest, error) {
	start, end, err := parseRange(req)
	if err != nil {
		return models.OverviewRequest{}, err
	}
	raw := stringField(req, "view")
	view, ok := models.ParseOverviewView(strings.ToLower(raw))
	if !ok {
		return models.OverviewRequest{}, utils.NewValidationError("unsupported view %q: expected all, group or machine", raw)
	}
	return models.OverviewRequest{Start: start, End: end, View: view}, nil
}

// FromTimelineRequest extracts the date range of a fleet timeline request.
func FromTimelineRequest(req *structpb.Struct) (time.Time, time.Time, error) {
	return parseRange(req)
}

// FromMachineTimelineRequest extracts the machine id and range of a single-machine request.
func FromMachineTimelineRequest(req *structpb.Struct) (string, time.Time, time.Time, error) {
	machineID := stringField(req, "machine_id", "machineId")
	if machineID == "" {
		return "", time.Time{}, time.Time{}, utils.NewValidationError("machine_id is required")
	}
	start, end, err := parseRange(req)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	return machineID, start, end, nil
}

// ToOverviewStruct converts an overview into its response document.
func ToOverviewStruct(overview models.UtilizationOverview) (*structpb.Struct, error) {
	return toStruct(overview)
}

// ToTimelinesStruct wraps fleet timelines under a "timelines" key.
func ToTimelinesStruct(timelines []models.MachineTimeline) (*structpb.Struct, error) {
	if timelines == nil {
		timelines = []models.MachineTimeline{}
	}
	return toStruct(map[string]any{"timelines": timelines})
}

// ToMachineTimelineStruct converts one machine timeline into its response document.
func ToMachineTimelineStruct(timeline models.MachineTimeline) (*structpb.Struct, error) {
	return toStruct(timeline)
}

func parseRange(req *structpb.Struct) (time.Time, time.Time, error) {
	rawStart := stringField(req, "start_date", "startDate")
	rawEnd := stringField(req, "end_date", "endDate")
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, utils.NewValidationError("start_date and end_date are required")
	}
	start, err := utils.ParseRequestTime(rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, utils.NewValidationError("start_date: %v", err)
	}
	end, err := utils.ParseRequestTime(rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, utils.NewValidationError("end_date: %v", err)
	}
	return start, end, nil
}

// stringField returns the first non-empty string value among keys.
func stringField(req *structpb.Struct, keys ...string) string {
	if req == nil {
		return ""
	}
	fields := req.GetFields()
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			if s := strings.TrimSpace(v.GetStringValue()); s != "" {
				return s
			}
		}
	}
	return ""
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}
