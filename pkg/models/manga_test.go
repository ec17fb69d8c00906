package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGenre(t *testing.T) {
	assert.Equal(t, GenreSciFi, ParseGenre("Sci-Fi"))
	assert.Equal(t, GenreSliceOfLife, ParseGenre(" slice of life "))
	assert.Equal(t, GenreAction, ParseGenre("ACTION"))
	assert.Equal(t, Genre(""), ParseGenre("cooking"))
	assert.Equal(t, Genre(""), ParseGenre(""))

	for _, g := range Genres {
		assert.Equal(t, g, ParseGenre(string(g)))
	}
}
