package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/workerapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) ReportOutcome(ctx context.Context, req *workerapi.ReportOutcomeRequest) (*workerapi.ReportOutcomeResponse, error) {

	outcome := models.Outcome{
		Kind:    models.OutcomeKind(req.Status),
		Data:    req.Data,
		Message: req.Error,
	}

	result, err := s.reporter.ReportOutcome(ctx, req.ProcessID, outcome)
	if err != nil {
		return nil, toStatus(err)
	}

	return &workerapi.ReportOutcomeResponse{
		ProcessID: result.ProcessID,
		Status:    string(result.Status),
		Duplicate: result.Duplicate,
	}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrInvalidStateTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrTransientConflict):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
