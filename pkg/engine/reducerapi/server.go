package reducerapi

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/cuemby/spacetimedb-core/pkg/engine"
	applog "github.com/cuemby/spacetimedb-core/pkg/log"
)

// Server adapts an *engine.Engine to the ReducerServiceServer gRPC
// contract. IdentityFromContext resolves the caller identity for a
// request; if nil, every call runs as the zero Identity (the connection
// mTLS / session layer that would derive a real identity from a
// connection's credentials is out of scope here).
type Server struct {
	Engine              *engine.Engine
	Budget              int64
	IdentityFromContext func(context.Context) engine.Identity

	grpc *grpc.Server
}

// NewServer returns a Server wrapping eng, with budget applied to every
// reducer call it dispatches.
func NewServer(eng *engine.Engine, budget int64) *Server {
	return &Server{Engine: eng, Budget: budget}
}

// Listen starts a grpc.Server on addr and serves until Stop is called or
// Serve returns.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("reducerapi: failed to listen on %s: %w", addr, err)
	}
	s.grpc = grpc.NewServer()
	RegisterReducerServiceServer(s.grpc, s)
	applog.WithComponent("reducerapi").Info().Str("addr", addr).Msg("reducer gRPC API listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

func (s *Server) identity(ctx context.Context) engine.Identity {
	if s.IdentityFromContext == nil {
		return engine.Identity{}
	}
	return s.IdentityFromContext(ctx)
}

// CallReducer implements ReducerServiceServer by dispatching to the
// wrapped Engine and translating its result/error into ReducerResult's
// Ok/OkEmpty/Err/InternalError outcome shape.
func (s *Server) CallReducer(ctx context.Context, req *CallReducerRequest) (*ReducerResult, error) {
	now := time.Now()
	result := &ReducerResult{RequestID: req.RequestID, Timestamp: now.UnixNano()}

	// traceID only correlates log lines for this call across the
	// reducer's own logging; the wire RequestID above is the one the
	// caller correlates its request against and is never replaced by it.
	traceID := uuid.New()
	rlog := applog.WithComponent("reducerapi")

	reducerID, ok := s.Engine.ReducerIDByName(req.Reducer)
	if !ok {
		rlog.Warn().Str("trace_id", traceID.String()).Str("reducer", req.Reducer).Msg("call for unknown reducer")
		result.Outcome = OutcomeInternalError
		result.InternalError = fmt.Sprintf("unknown reducer %q", req.Reducer)
		return result, nil
	}

	outcome, err := s.Engine.CallReducer(reducerID, req.Args, s.identity(ctx), now, s.Budget)
	if err != nil {
		if appErr, ok := err.(*engine.ReducerAppError); ok {
			rlog.Info().Str("trace_id", traceID.String()).Str("reducer", req.Reducer).Msg("reducer call rejected")
			result.Outcome = OutcomeErr
			result.ErrBytes = appErr.Bytes
			return result, nil
		}
		rlog.Error().Str("trace_id", traceID.String()).Str("reducer", req.Reducer).Err(err).Msg("reducer call failed")
		result.Outcome = OutcomeInternalError
		result.InternalError = err.Error()
		return result, nil
	}

	if !outcome.HasReturnValue {
		result.Outcome = OutcomeOkEmpty
		result.Update = toWireUpdate(outcome.Update)
		return result, nil
	}
	result.Outcome = OutcomeOk
	result.ReturnValue = outcome.ReturnValueBytes
	result.Update = toWireUpdate(outcome.Update)
	return result, nil
}
