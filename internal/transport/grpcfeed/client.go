package grpcfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Dicklesworthstone/sysmon/internal/model"
)

// ErrStreamClosed is returned by Subscribe when the server ends the feed.
var ErrStreamClosed = errors.New("feed closed by server")

// Client talks to a remote Statistics service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects lazily to target. Transport security is off unless opts
// supply credentials.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Subscribe calls fn for each snapshot until ctx ends or the stream fails.
// Received snapshots are stamped with the local receive time.
func (c *Client) Subscribe(ctx context.Context, fn func(model.Snapshot)) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return ErrStreamClosed
			case ctx.Err() != nil && status.Code(err) == codes.Canceled:
				return ctx.Err()
			}
			return fmt.Errorf("subscribe: %w", err)
		}
		var snap model.Snapshot
		if err := fromStruct(msg, &snap); err != nil {
			return err
		}
		if snap.TopProcesses == nil {
			snap.TopProcesses = []model.ProcessSample{}
		}
		snap.Timestamp = time.Now()
		fn(snap)
	}
}

func (c *Client) StaticInfo(ctx context.Context) (model.StaticInfo, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, staticInfoMethod, &emptypb.Empty{}, out); err != nil {
		return model.StaticInfo{}, fmt.Errorf("static info: %w", err)
	}
	var info model.StaticInfo
	if err := fromStruct(out, &info); err != nil {
		return model.StaticInfo{}, err
	}
	return info, nil
}

// Terminate asks the remote host to end pid.
func (c *Client) Terminate(ctx context.Context, pid int32) (bool, error) {
	req, err := structpb.NewStruct(map[string]any{"pid": pid})
	if err != nil {
		return false, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, terminateMethod, req, out); err != nil {
		return false, fmt.Errorf("terminate %d: %w", pid, err)
	}
	return out.GetFields()["ok"].GetBoolValue(), nil
}
