package grpcserver

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/internal/search"
	"mangaverse/pkg/models"
)

// Server is the read-only catalog service.
type Server struct {
	MangaRepo  *manga.Repo
	SearchRepo *search.Repo
	Media      media.Store
}

func NewServer(mangaRepo *manga.Repo, searchRepo *search.Repo, store media.Store) *Server {
	return &Server{MangaRepo: mangaRepo, SearchRepo: searchRepo, Media: store}
}

// NewGRPCServer returns a grpc.Server with the catalog registered and the
// JSON codec forced.
func NewGRPCServer(svc CatalogServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(Codec()))
	s := grpc.NewServer(opts...)
	RegisterCatalogServer(s, svc)
	return s
}

func (s *Server) GetManga(ctx context.Context, req *GetMangaRequest) (*GetMangaResponse, error) {
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		return nil, status.Error(codes.InvalidArgument, "slug required")
	}

	item, err := s.MangaRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, status.Error(codes.Internal, "get failed")
	}
	if item == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}
	favorites, err := s.MangaRepo.FavoritesCount(ctx, item.ID)
	if err != nil {
		return nil, status.Error(codes.Internal, "count favorites failed")
	}

	out := s.mangaToWire(*item)
	out.Favorites = int32(favorites)
	return &GetMangaResponse{Manga: out}, nil
}

func (s *Server) SearchManga(ctx context.Context, req *SearchMangaRequest) (*SearchMangaResponse, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, status.Error(codes.InvalidArgument, "query required")
	}
	limit := int(req.Limit)
	if limit <= 0 || limit > 100 {
		limit = search.PerPage
	}
	offset := int(req.Offset)
	if offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "offset must be >= 0")
	}

	total, err := s.SearchRepo.Count(ctx, q)
	if err != nil {
		return nil, status.Error(codes.Internal, "count failed")
	}
	items, err := s.SearchRepo.Search(ctx, q, limit, offset)
	if err != nil {
		return nil, status.Error(codes.Internal, "search failed")
	}

	resp := &SearchMangaResponse{Total: int32(total), Items: make([]*Manga, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, s.mangaToWire(item))
	}
	return resp, nil
}

func (s *Server) ListChapters(ctx context.Context, req *ListChaptersRequest) (*ListChaptersResponse, error) {
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		return nil, status.Error(codes.InvalidArgument, "slug required")
	}

	item, err := s.MangaRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, status.Error(codes.Internal, "get failed")
	}
	if item == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}
	chapters, err := s.MangaRepo.ListChapters(ctx, item.ID)
	if err != nil {
		return nil, status.Error(codes.Internal, "list failed")
	}

	resp := &ListChaptersResponse{Items: make([]*Chapter, 0, len(chapters))}
	for _, ch := range chapters {
		resp.Items = append(resp.Items, chapterToWire(ch))
	}
	return resp, nil
}

func (s *Server) mangaToWire(item models.Manga) *Manga {
	out := &Manga{
		ID:       item.ID,
		Slug:     item.Slug,
		Title:    item.Title,
		Author:   item.Author,
		Genre:    string(item.Genre),
		Synopsis: item.Synopsis,
		OwnerID:  item.OwnerID,
	}
	if item.Cover != "" && s.Media != nil {
		out.CoverURL = s.Media.URL(item.Cover)
	}
	return out
}

func chapterToWire(ch models.Chapter) *Chapter {
	out := &Chapter{ID: ch.ID, Number: int32(ch.Number), Slug: ch.Slug, Title: ch.Title}
	if ch.ArcID != nil {
		out.ArcID = *ch.ArcID
	}
	return out
}
