package visualiser

import (
	"context"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	worldServiceName = "simworld.WorldService"
	streamWorldPath  = "/" + worldServiceName + "/StreamWorld"

	// ClientNameKey is the metadata key clients use to label their stream.
	ClientNameKey = "x-client-name"
)

// WorldServer is the server API for the world stream.
type WorldServer interface {
	StreamWorld(req *structpb.Struct, stream grpc.ServerStream) error
}

var worldServiceDesc = grpc.ServiceDesc{
	ServiceName: worldServiceName,
	HandlerType: (*WorldServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamWorld",
			Handler:       streamWorldHandler,
			ServerStreams: true,
		},
	},
	Metadata: "simworld/world.proto",
}

func streamWorldHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(WorldServer).StreamWorld(req, stream)
}

// RegisterWorldServer registers srv on s.
func RegisterWorldServer(s grpc.ServiceRegistrar, srv WorldServer) {
	s.RegisterService(&worldServiceDesc, srv)
}

// Ensure Server implements the gRPC interface.
var _ WorldServer = (*Server)(nil)

// Server implements the world stream on top of a Publisher.
type Server struct {
	publisher *Publisher
}

// NewServer creates a new gRPC server.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// StreamWorld sends a frame for every published world change until the
// client goes away.
func (s *Server) StreamWorld(req *structpb.Struct, stream grpc.ServerStream) error {
	opts, err := optionsFromStruct(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if !s.publisher.Running() {
		return status.Error(codes.Unavailable, "publisher not running")
	}

	ctx := stream.Context()
	id, frames := s.publisher.Subscribe(clientName(ctx))
	defer s.publisher.Unsubscribe(id)

	log.Printf("[gRPC] StreamWorld started: client=%s objects=%v trajectory=%v monitor=%v",
		id, opts.IncludeObjects, opts.IncludeTrajectory, opts.IncludeMonitor)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-frames:
			msg, err := frameToStruct(frame, opts)
			if err != nil {
				return status.Errorf(codes.Internal, "encode frame %d: %v", frame.FrameID, err)
			}
			if err := stream.SendMsg(msg); err != nil {
				log.Printf("[gRPC] Send error: %v", err)
				return err
			}
		}
	}
}

func clientName(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "grpc"
	}
	if v := md.Get(ClientNameKey); len(v) > 0 && v[0] != "" {
		return v[0]
	}
	return "grpc"
}

// WorldClient is a client for the world stream.
type WorldClient struct {
	cc grpc.ClientConnInterface
}

// NewWorldClient wraps an established connection.
func NewWorldClient(cc grpc.ClientConnInterface) *WorldClient {
	return &WorldClient{cc: cc}
}

// WorldStream receives frames from StreamWorld.
type WorldStream struct {
	stream grpc.ClientStream
}

// StreamWorld opens a world stream. Set ClientNameKey in the outgoing
// metadata of ctx to label the client.
func (c *WorldClient) StreamWorld(ctx context.Context, opts StreamOptions) (*WorldStream, error) {
	stream, err := c.cc.NewStream(ctx, &worldServiceDesc.Streams[0], streamWorldPath)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(opts.Struct()); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WorldStream{stream: stream}, nil
}

// Recv blocks for the next frame.
func (s *WorldStream) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
