package rpc

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/view"
)

const (
	serviceName = "bookmarker.ResourceWatcher"
	watchMethod = "/" + serviceName + "/Watch"
	tokenKey    = "x-token"
)

type (
	// WatchRequest selects the derived view the stream emits.
	WatchRequest struct {
		Search   string `json:"search"`
		Category string `json:"category"`
		Sort     string `json:"sort"`
	}

	// WatchEvent is one full snapshot after filtering and sorting.
	WatchEvent struct {
		Resources []models.Resource `json:"resources"`
	}

	ResourceWatcher interface {
		Watch(*WatchRequest, grpc.ServerStream) error
	}
)

var watcherDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ResourceWatcher)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "resource_watcher",
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(WatchRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(ResourceWatcher).Watch(req, stream)
}

func RegisterResourceWatcher(s grpc.ServiceRegistrar, srv ResourceWatcher) {
	s.RegisterService(&watcherDesc, srv)
}

type (
	Client struct {
		conn grpc.ClientConnInterface
	}

	WatchStream struct {
		stream grpc.ClientStream
	}
)

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Watch opens a snapshot stream for the user behind token.
func (c *Client) Watch(ctx context.Context, token string, req *WatchRequest) (*WatchStream, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, tokenKey, token)

	stream, err := c.conn.NewStream(ctx, &watcherDesc.Streams[0], watchMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, errors.Wrap(err, "open watch stream")
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, errors.Wrap(err, "send watch request")
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errors.Wrap(err, "close send")
	}
	return &WatchStream{stream: stream}, nil
}

// Recv blocks for the next snapshot. io.EOF marks a clean end.
func (w *WatchStream) Recv() (*WatchEvent, error) {
	ev := new(WatchEvent)
	if err := w.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Follow mirrors the user's whole collection into cache until the stream
// ends. The server sends the unfiltered list, so changing the cache query
// does not need a new stream. A stream failure is applied to the cache and
// returned; a clean end returns nil.
func (c *Client) Follow(ctx context.Context, token string, cache *view.Cache) error {
	stream, err := c.Watch(ctx, token, &WatchRequest{})
	if err != nil {
		cache.Apply(models.Snapshot{Err: err})
		return err
	}

	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cache.Apply(models.Snapshot{Err: err})
			return err
		}
		cache.Apply(models.Snapshot{Resources: ev.Resources})
	}
}
