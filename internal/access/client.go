package access

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/moderation"
)

// Client calls a remote access service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a new client with insecure transport unless opts say otherwise.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Request is one authorization question. Kind and ResourceID are only needed
// for edit and delete.
type Request struct {
	Identity   string
	Action     string
	Kind       string
	ResourceID string
}

// Result is the remote decision.
type Result struct {
	Allowed bool
	Reason  string
	Action  string
	Role    string
}

func (c *Client) Check(ctx context.Context, req Request) (Result, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"identity":    structpb.NewStringValue(req.Identity),
		"action":      structpb.NewStringValue(req.Action),
		"kind":        structpb.NewStringValue(req.Kind),
		"resource_id": structpb.NewStringValue(req.ResourceID),
	}}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(outgoingWithIdentity(ctx), CheckMethod, in, out); err != nil {
		return Result{}, mapError(err)
	}
	f := out.GetFields()
	return Result{
		Allowed: f["allowed"].GetBoolValue(),
		Reason:  f["reason"].GetStringValue(),
		Action:  f["action"].GetStringValue(),
		Role:    f["role"].GetStringValue(),
	}, nil
}

func outgoingWithIdentity(ctx context.Context) context.Context {
	if id, ok := auth.IdentityFromContext(ctx); ok {
		return metadata.AppendToOutgoingContext(ctx, identityHeader, id)
	}
	return ctx
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.Join(moderation.ErrNotFound, err)
	case codes.InvalidArgument:
		return errors.Join(auth.ErrInvalidInput, err)
	default:
		return err
	}
}

// WithTimeout returns a context with a default timeout for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
