// Package classifier serves texture classification over gRPC and turns probe samples into textures.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

const (
	ServiceName    = "soil.v1.TextureClassifier"
	classifyMethod = "/" + ServiceName + "/Classify"
)

// TextureClassifierServer takes {sand, silt, clay} and answers
// {label, rule, rescaled, sand, silt, clay} with the normalized composition.
type TextureClassifierServer interface {
	Classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func classifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TextureClassifierServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: classifyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TextureClassifierServer).Classify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TextureClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: classifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "soil/v1/texture.proto",
}

func RegisterTextureClassifierServer(s grpc.ServiceRegistrar, srv TextureClassifierServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GrpcHandler implements TextureClassifierServer.
type GrpcHandler struct {
	metrics *Metrics
}

var _ TextureClassifierServer = (*GrpcHandler)(nil)

func NewGrpcHandler(m *Metrics) *GrpcHandler {
	return &GrpcHandler{metrics: m}
}

func (h *GrpcHandler) Classify(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := compositionFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res := soiltexture.Analyze(c)
	if h.metrics != nil {
		h.metrics.Classifications.WithLabelValues(string(res.Label), "grpc").Inc()
	}
	log.Debug().Str("label", string(res.Label)).Int("rule", res.Rule).Msg("classifier: grpc classify")

	out, err := structpb.NewStruct(map[string]interface{}{
		"label":    string(res.Label),
		"rule":     res.Rule,
		"rescaled": res.Rescaled,
		"sand":     res.Normalized.Sand,
		"silt":     res.Normalized.Silt,
		"clay":     res.Normalized.Clay,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func compositionFromStruct(s *structpb.Struct) (soiltexture.Composition, error) {
	var c soiltexture.Composition
	for name, dst := range map[string]*float64{"sand": &c.Sand, "silt": &c.Silt, "clay": &c.Clay} {
		v, ok := s.GetFields()[name]
		if !ok {
			return c, fmt.Errorf("missing field %q", name)
		}
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return c, fmt.Errorf("field %q is not a number", name)
		}
		if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
			return c, fmt.Errorf("field %q is not finite", name)
		}
		*dst = n.NumberValue
	}
	return c, nil
}

// Client calls a remote TextureClassifier.
type Client struct {
	conn *grpc.ClientConn
}

// Dial sets up a plaintext connection; the transport connects lazily.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("classifier: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Classify(ctx context.Context, comp soiltexture.Composition) (soiltexture.Result, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"sand": comp.Sand,
		"silt": comp.Silt,
		"clay": comp.Clay,
	})
	if err != nil {
		return soiltexture.Result{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, classifyMethod, req, out); err != nil {
		return soiltexture.Result{}, err
	}

	f := out.GetFields()
	label, ok := soiltexture.ParseLabel(f["label"].GetStringValue())
	if !ok {
		return soiltexture.Result{}, errors.New("classifier: unknown label in response")
	}
	return soiltexture.Result{
		Label:    label,
		Rule:     int(f["rule"].GetNumberValue()),
		Input:    comp,
		Rescaled: f["rescaled"].GetBoolValue(),
		Normalized: soiltexture.Composition{
			Sand: f["sand"].GetNumberValue(),
			Silt: f["silt"].GetNumberValue(),
			Clay: f["clay"].GetNumberValue(),
		},
	}, nil
}

func (c *Client) Close() error { return c.conn.Close() }
