package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the catalog service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to a catalog server without TLS, for local tooling.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec())),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.ForceCodec(Codec()))
}

func (c *Client) GetManga(ctx context.Context, in *GetMangaRequest) (*GetMangaResponse, error) {
	out := new(GetMangaResponse)
	if err := c.invoke(ctx, "GetManga", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SearchManga(ctx context.Context, in *SearchMangaRequest) (*SearchMangaResponse, error) {
	out := new(SearchMangaResponse)
	if err := c.invoke(ctx, "SearchManga", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListChapters(ctx context.Context, in *ListChaptersRequest) (*ListChaptersResponse, error) {
	out := new(ListChaptersResponse)
	if err := c.invoke(ctx, "ListChapters", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
