package workerapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestRequest_OverTheWire(t *testing.T) {
	in := &ReportOutcomeRequest{
		ProcessID: "p1",
		Status:    "completed",
		Data:      json.RawMessage(`{"text":"John","skills":["go","sql"],"years":7}`),
	}

	msg, err := in.Proto()
	require.NoError(t, err)
	b, err := proto.Marshal(msg)
	require.NoError(t, err)

	wire := &structpb.Struct{}
	require.NoError(t, proto.Unmarshal(b, wire))

	out, err := RequestFromProto(wire)
	require.NoError(t, err)
	assert.Equal(t, "p1", out.ProcessID)
	assert.Equal(t, "completed", out.Status)
	assert.Empty(t, out.Error)
	assert.JSONEq(t, string(in.Data), string(out.Data))
}

func TestRequest_FailedWithoutData(t *testing.T) {
	msg, err := (&ReportOutcomeRequest{ProcessID: "p1", Status: "failed", Error: "ocr crashed"}).Proto()
	require.NoError(t, err)
	assert.NotContains(t, msg.GetFields(), fieldData)

	out, err := RequestFromProto(msg)
	require.NoError(t, err)
	assert.Equal(t, "ocr crashed", out.Error)
	assert.Nil(t, out.Data)
}

func TestRequest_Errors(t *testing.T) {
	_, err := (&ReportOutcomeRequest{ProcessID: "p1", Status: "completed", Data: json.RawMessage(`{`)}).Proto()
	assert.ErrorContains(t, err, "encode data")

	wrong, err := structpb.NewStruct(map[string]any{"processId": 42, "status": "completed"})
	require.NoError(t, err)
	_, err = RequestFromProto(wrong)
	assert.EqualError(t, err, "field processId: want string")

	nulls, err := structpb.NewStruct(map[string]any{"processId": "p1", "status": "completed", "data": nil})
	require.NoError(t, err)
	out, err := RequestFromProto(nulls)
	require.NoError(t, err)
	assert.Nil(t, out.Data)
}

func TestResponse_Proto(t *testing.T) {
	in := &ReportOutcomeResponse{ProcessID: "p1", Status: "completed", Duplicate: true}
	out, err := ResponseFromProto(in.Proto())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	wrong, err := structpb.NewStruct(map[string]any{"processId": "p1", "duplicate": "yes"})
	require.NoError(t, err)
	_, err = ResponseFromProto(wrong)
	assert.EqualError(t, err, "field duplicate: want bool")
}
