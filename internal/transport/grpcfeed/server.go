package grpcfeed

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Dicklesworthstone/sysmon/internal/logger"
	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/publish"
	"github.com/Dicklesworthstone/sysmon/internal/sampler"
)

// streamBuffer is how many snapshots a stream may lag before the broker's
// own per-subscriber queue takes over.
const streamBuffer = 16

// InfoSource yields the machine description.
type InfoSource interface {
	StaticInfo(ctx context.Context) (model.StaticInfo, error)
}

// Terminator ends a process by pid.
type Terminator interface {
	Terminate(ctx context.Context, pid int32) (bool, error)
}

type Server struct {
	broker *publish.Broker
	info   InfoSource
	term   Terminator
	logger *slog.Logger
}

func NewServer(broker *publish.Broker, info InfoSource, term Terminator, l *slog.Logger) *Server {
	return &Server{broker: broker, info: info, term: term, logger: logger.OrDiscard(l)}
}

// Register adds the Statistics service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

// Subscribe streams every snapshot published after the call until the
// client goes away or the broker closes.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	ch := make(chan model.Snapshot, streamBuffer)
	stop := make(chan struct{})
	unsub, err := s.broker.Subscribe(func(snap model.Snapshot) {
		select {
		case ch <- snap:
		case <-ctx.Done():
		case <-stop:
		}
	})
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer func() {
		close(stop)
		unsub()
	}()
	s.logger.Debug("feed subscriber attached")

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("feed subscriber detached")
			return nil
		case <-s.broker.Done():
			return status.Error(codes.Unavailable, publish.ErrClosed.Error())
		case snap := <-ch:
			msg, err := toStruct(snap)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) StaticInfo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.info == nil {
		return nil, status.Error(codes.Unimplemented, "static info not available")
	}
	info, err := s.info.StaticInfo(ctx)
	if err != nil {
		s.logger.Warn("static info failed", "err", err)
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	msg, err := toStruct(info)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return msg, nil
}

// Terminate expects {"pid": <number>} and answers {"ok": <bool>}.
func (s *Server) Terminate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.term == nil {
		return nil, status.Error(codes.Unimplemented, "terminate not available")
	}
	v, ok := req.GetFields()["pid"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "pid is required")
	}
	n := v.GetNumberValue()
	if n != math.Trunc(n) || n <= 0 || n > math.MaxInt32 {
		return nil, status.Errorf(codes.InvalidArgument, "invalid pid %v", n)
	}
	killed, err := s.term.Terminate(ctx, int32(n))
	if err != nil {
		if errors.Is(err, sampler.ErrInvalidPID) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Warn("terminate failed", "pid", int32(n), "err", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]any{"ok": killed})
}
