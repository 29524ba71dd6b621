// Package access exposes authorization decisions over gRPC so that sibling
// services can ask "may this identity do that" without linking the rules.
package access

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/moderation"
	"pollhub.org/internal/obs"
)

const (
	ServiceName = "pollhub.access.v1.AccessService"
	CheckMethod = "/" + ServiceName + "/Check"

	// identityHeader carries the caller identity when the request omits it.
	identityHeader = "x-pollhub-identity"
)

// ResourceLookup resolves the owner of a poll or comment.
type ResourceLookup interface {
	FetchResource(ctx context.Context, kind moderation.Kind, id string) (moderation.Resource, error)
}

// Checker is the server side of the access service.
type Checker interface {
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Server answers Check calls with auth.Authorize.
type Server struct {
	gate      *auth.Gate
	resources ResourceLookup
	log       logrus.FieldLogger
}

func NewServer(gate *auth.Gate, resources ResourceLookup) (*Server, error) {
	if gate == nil {
		return nil, errors.New("access: profile gate is required")
	}
	if resources == nil {
		return nil, errors.New("access: resource lookup is required")
	}
	return &Server{
		gate:      gate,
		resources: resources,
		log:       obs.Logger().WithField("component", "access"),
	}, nil
}

// Check expects {identity, action, kind, resource_id} and replies with
// {allowed, reason, action} plus the resolved role when there is one.
// Unknown actions are denied, not rejected.
func (s *Server) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	identity := strings.TrimSpace(fields["identity"].GetStringValue())
	if identity == "" {
		identity = identityFromMetadata(ctx)
	}
	rawAction := fields["action"].GetStringValue()
	kind := fields["kind"].GetStringValue()
	resourceID := strings.TrimSpace(fields["resource_id"].GetStringValue())

	// The identity is asserted by the client, not authenticated, so it is
	// resolved as a third party and never reaches the privileged store.
	var actor *auth.Profile
	if identity != "" {
		p, err := s.gate.ResolveActor(ctx, identity)
		switch {
		case err == nil:
			actor = &p
		case errors.Is(err, auth.ErrNotFound):
		default:
			s.log.WithError(err).WithField("identity_id", identity).Error("resolve caller")
			return nil, status.Error(codes.Unavailable, "profile store unavailable")
		}
	}

	action, ok := auth.ParseAction(rawAction)
	if !ok {
		return decisionStruct(auth.Deny(auth.Action(rawAction), auth.ReasonUnknownAction), actor), nil
	}

	var res *auth.Resource
	if resourceID != "" {
		k, err := moderation.ParseKind(kind)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		r, err := s.resources.FetchResource(ctx, k, resourceID)
		switch {
		case errors.Is(err, moderation.ErrNotFound):
			return nil, status.Errorf(codes.NotFound, "%s %s not found", k, resourceID)
		case err != nil:
			s.log.WithError(err).WithField("resource_id", resourceID).Error("fetch resource")
			return nil, status.Error(codes.Internal, "resource lookup failed")
		}
		res = r.AuthResource()
	}

	d := auth.Authorize(actor, action, res)
	obs.RecordDecision(string(action), d.Allowed, d.Reason)
	return decisionStruct(d, actor), nil
}

func decisionStruct(d auth.Decision, actor *auth.Profile) *structpb.Struct {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"allowed": structpb.NewBoolValue(d.Allowed),
		"reason":  structpb.NewStringValue(d.Reason),
		"action":  structpb.NewStringValue(string(d.Action)),
	}}
	if actor != nil {
		out.Fields["role"] = structpb.NewStringValue(string(actor.Role))
		out.Fields["active"] = structpb.NewBoolValue(actor.IsActive)
	}
	return out
}

func identityFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(identityHeader); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// Register attaches the access service to a gRPC server.
func Register(reg grpc.ServiceRegistrar, srv Checker) {
	reg.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Checker)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pollhub/access/v1/access.proto",
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Checker).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Checker).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
