package tokenizer_test

import (
	"testing"

	"github.com/chim331u/mediabutler/internal/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeHappyPathScenario1(t *testing.T) {
	r := tokenizer.Tokenize("The.Walking.Dead.S11E24.FINAL.ITA.ENG.1080p.mkv")

	assert.Equal(t, []string{"the", "walking", "dead"}, r.SeriesTokens)
	require.NotNil(t, r.Episode)
	assert.Equal(t, 11, r.Episode.Season)
	assert.Equal(t, 24, r.Episode.Episode)
	assert.True(t, r.Episode.HasSeason)
	assert.Equal(t, "1080p", r.Quality.Resolution)
}

func TestTokenizeNxMPattern(t *testing.T) {
	r := tokenizer.Tokenize("Friends.5x14.The.One.Where.Everybody.Finds.Out.avi")
	require.NotNil(t, r.Episode)
	assert.Equal(t, 5, r.Episode.Season)
	assert.Equal(t, 14, r.Episode.Episode)
	assert.Equal(t, []string{"friends"}, r.SeriesTokens)
}

func TestTokenizeSeasonEpisodeWords(t *testing.T) {
	r := tokenizer.Tokenize("Doctor Who Season 4 Episode 12.mkv")
	require.NotNil(t, r.Episode)
	assert.Equal(t, 4, r.Episode.Season)
	assert.Equal(t, 12, r.Episode.Episode)
	assert.Equal(t, []string{"doctor", "who"}, r.SeriesTokens)
}

func TestTokenizeFlatNumberedSeries(t *testing.T) {
	r := tokenizer.Tokenize("One.Piece.1089.mkv")
	require.NotNil(t, r.Episode)
	assert.False(t, r.Episode.HasSeason)
	assert.Equal(t, 1089, r.Episode.Episode)
	assert.Equal(t, []string{"one", "piece"}, r.SeriesTokens)
}

func TestTokenizeBareNumberMidStreamIsNotEpisode(t *testing.T) {
	r := tokenizer.Tokenize("Friends.2.Disc.1.mkv")
	assert.Nil(t, r.Episode)
	assert.Equal(t, []string{"friends", "disc"}, r.SeriesTokens)
}

func TestTokenizeStripsLeadingGroupTag(t *testing.T) {
	r := tokenizer.Tokenize("[SubsPlease] Spy x Family - 12.mkv")
	assert.NotContains(t, r.SeriesTokens, "subsplease")
}

func TestTokenizeTrailingYearTruncation(t *testing.T) {
	r := tokenizer.Tokenize("Dune.2021.1080p.mkv")
	assert.Equal(t, []string{"dune"}, r.SeriesTokens)
}

func TestTokenizeRemovesReleaseGroupAndStopwords(t *testing.T) {
	r := tokenizer.Tokenize("The.Walking.Dead.S11E24.REPACK.x264-GROUP.mkv")
	assert.Equal(t, []string{"the", "walking", "dead"}, r.SeriesTokens)
	assert.Equal(t, "x264", r.Quality.Codec)
}
