package taskrt

import (
	"errors"
	"fmt"

	"github.com/gogo/status"
	"google.golang.org/grpc/codes"

	"github.com/driftql/queryrt/pkg/outputbuffer"
)

// ErrTaskNotFound is returned by GetTask and DestroyTask when a caller
// references a task id the Manager has never seen, or has already reaped.
var ErrTaskNotFound = errors.New("taskrt: task not found")

// ErrTaskExists is returned by CreateTask when the caller supplies a task
// id that already has a registered buffer.
var ErrTaskExists = errors.New("taskrt: task already exists")

// ToStatusError translates an internal error into the coded error a gRPC
// task-control endpoint should actually return, the way
// modules/backendscheduler.go's Next/UpdateJob translate work package
// errors into status.Error(codes.NotFound, ...) at the RPC boundary.
// pkg/outputbuffer itself never imports grpc/status (spec §1 keeps it
// transport-agnostic); this translation happens one layer up, here.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}

	var paramErr *outputbuffer.ParameterError
	if errors.As(err, &paramErr) {
		return status.Error(codes.InvalidArgument, paramErr.Error())
	}

	var invErr *outputbuffer.InvariantError
	if errors.As(err, &invErr) {
		return status.Error(codes.FailedPrecondition, invErr.Error())
	}

	switch {
	case errors.Is(err, ErrTaskNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrTaskExists):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("taskrt: %s", err.Error()))
	}
}
