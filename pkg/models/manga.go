package models

import (
	"strings"
	"time"
)

type Genre string

const (
	GenreAction       Genre = "action"
	GenreAdventure    Genre = "adventure"
	GenreComedy       Genre = "comedy"
	GenreDrama        Genre = "drama"
	GenreFantasy      Genre = "fantasy"
	GenreHorror       Genre = "horror"
	GenreMystery      Genre = "mystery"
	GenreRomance      Genre = "romance"
	GenreSciFi        Genre = "sci_fi"
	GenreSliceOfLife  Genre = "slice_of_life"
	GenreSports       Genre = "sports"
	GenreSupernatural Genre = "supernatural"
	GenreOther        Genre = "other"
)

var Genres = []Genre{
	GenreAction, GenreAdventure, GenreComedy, GenreDrama, GenreFantasy, GenreHorror,
	GenreMystery, GenreRomance, GenreSciFi, GenreSliceOfLife, GenreSports,
	GenreSupernatural, GenreOther,
}

// ParseGenre accepts the canonical value or a loose spelling ("Sci-Fi",
// "slice of life"). It returns "" for unknown genres.
func ParseGenre(s string) Genre {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	for _, g := range Genres {
		if string(g) == s {
			return g
		}
	}
	return ""
}

type Manga struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Genre     Genre     `json:"genre"`
	Synopsis  string    `json:"synopsis"`
	Cover     string    `json:"cover,omitempty"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Arc struct {
	ID      int64  `json:"id"`
	MangaID int64  `json:"manga_id"`
	Title   string `json:"title"`
	Order   int    `json:"order"`
}

type Chapter struct {
	ID        int64     `json:"id"`
	MangaID   int64     `json:"manga_id"`
	ArcID     *int64    `json:"arc_id,omitempty"`
	Title     string    `json:"title"`
	Number    int       `json:"number"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type Panel struct {
	ID         int64  `json:"id"`
	ChapterID  int64  `json:"chapter_id"`
	Image      string `json:"image"`
	PageNumber int    `json:"page_number"`
}
