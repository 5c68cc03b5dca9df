// Package workerapi defines the gRPC contract between the ingestion server
// and extraction workers. Messages travel as google.protobuf.Struct on the
// default proto codec; the typed request and response below convert to and
// from that wire form.
package workerapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldProcessID = "processId"
	fieldStatus    = "status"
	fieldData      = "data"
	fieldError     = "error"
	fieldDuplicate = "duplicate"
)

// ReportOutcomeRequest is one worker report. Status is one of processing,
// completed, failed or not-a-cv.
type ReportOutcomeRequest struct {
	ProcessID string
	Status    string
	Data      json.RawMessage
	Error     string
}

type ReportOutcomeResponse struct {
	ProcessID string
	Status    string
	Duplicate bool
}

// Proto encodes the request. Data must be valid JSON.
func (r *ReportOutcomeRequest) Proto() (*structpb.Struct, error) {
	fields := map[string]*structpb.Value{
		fieldProcessID: structpb.NewStringValue(r.ProcessID),
		fieldStatus:    structpb.NewStringValue(r.Status),
	}
	if len(r.Data) > 0 {
		v := &structpb.Value{}
		if err := protojson.Unmarshal(r.Data, v); err != nil {
			return nil, fmt.Errorf("encode %s: %w", fieldData, err)
		}
		fields[fieldData] = v
	}
	if r.Error != "" {
		fields[fieldError] = structpb.NewStringValue(r.Error)
	}
	return &structpb.Struct{Fields: fields}, nil
}

// RequestFromProto decodes a request. Missing fields stay empty; a field of
// the wrong kind is an error.
func RequestFromProto(s *structpb.Struct) (*ReportOutcomeRequest, error) {
	r := &ReportOutcomeRequest{}
	var err error
	if r.ProcessID, err = stringField(s, fieldProcessID); err != nil {
		return nil, err
	}
	if r.Status, err = stringField(s, fieldStatus); err != nil {
		return nil, err
	}
	if r.Error, err = stringField(s, fieldError); err != nil {
		return nil, err
	}
	if v, ok := s.GetFields()[fieldData]; ok && !isNull(v) {
		if r.Data, err = protojson.Marshal(v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", fieldData, err)
		}
	}
	return r, nil
}

func (r *ReportOutcomeResponse) Proto() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldProcessID: structpb.NewStringValue(r.ProcessID),
		fieldStatus:    structpb.NewStringValue(r.Status),
		fieldDuplicate: structpb.NewBoolValue(r.Duplicate),
	}}
}

func ResponseFromProto(s *structpb.Struct) (*ReportOutcomeResponse, error) {
	r := &ReportOutcomeResponse{}
	var err error
	if r.ProcessID, err = stringField(s, fieldProcessID); err != nil {
		return nil, err
	}
	if r.Status, err = stringField(s, fieldStatus); err != nil {
		return nil, err
	}
	if v, ok := s.GetFields()[fieldDuplicate]; ok && !isNull(v) {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, fmt.Errorf("field %s: want bool", fieldDuplicate)
		}
		r.Duplicate = b.BoolValue
	}
	return r, nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok || isNull(v) {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %s: want string", name)
	}
	return sv.StringValue, nil
}

func isNull(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok || v.GetKind() == nil
}
