package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "mangaverse.Catalog"

type Manga struct {
	ID        int64  `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Genre     string `json:"genre"`
	Synopsis  string `json:"synopsis"`
	CoverURL  string `json:"cover_url"`
	OwnerID   string `json:"owner_id"`
	Favorites int32  `json:"favorites"`
}

type Chapter struct {
	ID     int64  `json:"id"`
	Number int32  `json:"number"`
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	ArcID  int64  `json:"arc_id,omitempty"`
}

type GetMangaRequest struct {
	Slug string `json:"slug"`
}

type GetMangaResponse struct {
	Manga *Manga `json:"manga"`
}

type SearchMangaRequest struct {
	Query  string `json:"query"`
	Limit  int32  `json:"limit"`
	Offset int32  `json:"offset"`
}

type SearchMangaResponse struct {
	Total int32    `json:"total"`
	Items []*Manga `json:"items"`
}

type ListChaptersRequest struct {
	Slug string `json:"slug"`
}

type ListChaptersResponse struct {
	Items []*Chapter `json:"items"`
}

type CatalogServer interface {
	GetManga(context.Context, *GetMangaRequest) (*GetMangaResponse, error)
	SearchManga(context.Context, *SearchMangaRequest) (*SearchMangaResponse, error)
	ListChapters(context.Context, *ListChaptersRequest) (*ListChaptersResponse, error)
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

// unary builds a method handler that decodes Req and dispatches to call,
// honoring any installed interceptor.
func unary[Req any](method string, call func(CatalogServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CatalogServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(CatalogServer), ctx, req.(*Req))
		})
	}
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetManga",
			Handler: unary("GetManga", func(s CatalogServer, ctx context.Context, in *GetMangaRequest) (any, error) {
				return s.GetManga(ctx, in)
			}),
		},
		{
			MethodName: "SearchManga",
			Handler: unary("SearchManga", func(s CatalogServer, ctx context.Context, in *SearchMangaRequest) (any, error) {
				return s.SearchManga(ctx, in)
			}),
		},
		{
			MethodName: "ListChapters",
			Handler: unary("ListChapters", func(s CatalogServer, ctx context.Context, in *ListChaptersRequest) (any, error) {
				return s.ListChapters(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mangaverse/catalog",
}
