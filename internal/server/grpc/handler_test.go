package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/workerapi"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestReportOutcome_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"not found", fmt.Errorf("%w: process p1", common.ErrorNotFound), codes.NotFound},
		{"validation", fmt.Errorf("%w: bad data", common.ErrorValidation), codes.InvalidArgument},
		{"transition", common.ErrInvalidStateTransition, codes.FailedPrecondition},
		{"unauthorized", common.ErrorUnauthorized, codes.Unauthenticated},
		{"transient", common.ErrTransientConflict, codes.Unavailable},
		{"invariant", common.ErrInvariantViolation, codes.Internal},
		{"other", errors.New("db down"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewGRPCServer("", testLogger(), &fakeReporter{err: tt.err}, "token")
			_, err := s.ReportOutcome(context.Background(), &workerapi.ReportOutcomeRequest{ProcessID: "p1", Status: "failed"})
			assert.Equal(t, tt.code, status.Code(err))
			if tt.code == codes.Internal {
				assert.Equal(t, "internal error", status.Convert(err).Message())
			}
		})
	}
}

func TestReportOutcome_MapsRequest(t *testing.T) {
	rep := &fakeReporter{err: common.ErrorNotFound}
	s := NewGRPCServer("", testLogger(), rep, "token")

	_, _ = s.ReportOutcome(context.Background(), &workerapi.ReportOutcomeRequest{ProcessID: "p9", Status: "failed", Error: "ocr crashed"})
	assert.Equal(t, "p9", rep.processID)
	assert.Equal(t, "failed", string(rep.outcome.Kind))
	assert.Equal(t, "ocr crashed", rep.outcome.Message)
}
