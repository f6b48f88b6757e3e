package queue

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grokfav/pkg/models"
)

const session = "grok-favorites/2024-05-01_10-00-00"

func TestBuildPairsImageAndVideo(t *testing.T) {
	groups := []models.MediaGroup{
		{GroupID: 1, Records: []models.HarvestedRecord{
			{URL: "https://assets.grok.com/a/image.jpg", Kind: models.KindImage},
			{URL: "https://assets.grok.com/b/generated_video.mp4", Kind: models.KindVideo},
		}},
		{GroupID: 2, Records: []models.HarvestedRecord{
			{URL: "https://assets.grok.com/c/content", Kind: models.KindImage},
		}},
	}

	entries, reversal := Build(groups, session)

	require.Len(t, entries, 3)
	assert.Equal(t, session+"/1-image.jpg", entries[0].TargetPath)
	assert.Equal(t, session+"/1-video.mp4", entries[1].TargetPath)
	assert.Equal(t, session+"/2-image.png", entries[2].TargetPath)
	assert.Equal(t, "2-image.png", entries[2].Label)
	assert.Equal(t, 2, entries[2].GroupID)

	require.Len(t, reversal, 2)
	assert.Equal(t, models.ReversalEntry{
		Index:        0,
		GroupID:      1,
		ImageURL:     "https://assets.grok.com/a/image.jpg",
		VideoURL:     "https://assets.grok.com/b/generated_video.mp4",
		ThumbnailURL: "https://assets.grok.com/a/image.jpg",
		MediaType:    models.MediaTypeBoth,
		Label:        "Favorite 1",
	}, reversal[0])
	assert.Equal(t, 1, reversal[1].Index)
	assert.Equal(t, models.MediaTypeImageOnly, reversal[1].MediaType)
}

func TestBuildResolvesCollisions(t *testing.T) {
	groups := []models.MediaGroup{
		{GroupID: 1, Records: []models.HarvestedRecord{
			{URL: "https://x/a.PNG", Kind: models.KindImage},
			{URL: "https://x/b.png", Kind: models.KindImage},
			{URL: "https://x/c.png", Kind: models.KindImage},
		}},
	}

	entries, _ := Build(groups, session)

	require.Len(t, entries, 3)
	assert.Equal(t, "1-image.png", entries[0].Label)
	assert.Equal(t, "1-image-2.png", entries[1].Label)
	assert.Equal(t, "1-image-3.png", entries[2].Label)
}

func TestBuildTargetsAreCaseInsensitivelyUnique(t *testing.T) {
	var groups []models.MediaGroup
	for id := 1; id <= 20; id++ {
		var recs []models.HarvestedRecord
		for j, ext := range []string{".JPG", ".jpg", ".Jpg", "", ".webm"} {
			kind := models.KindImage
			if j%2 == 1 {
				kind = models.KindVideo
			}
			recs = append(recs, models.HarvestedRecord{URL: "https://x/" + string(rune('a'+j)) + ext, Kind: kind})
		}
		groups = append(groups, models.MediaGroup{GroupID: id, Records: recs})
	}

	entries, _ := Build(groups, session)
	seen := map[string]bool{}
	for _, e := range entries {
		key := strings.ToLower(e.TargetPath)
		assert.False(t, seen[key], "duplicate %s", e.TargetPath)
		seen[key] = true
	}
}

func TestBuildReversalGroupsOutOfOrder(t *testing.T) {
	groups := []models.MediaGroup{
		{GroupID: 3, Records: []models.HarvestedRecord{{URL: "v3", Kind: models.KindVideo}}},
		{GroupID: 1, Records: []models.HarvestedRecord{{URL: "o1", Kind: "gif"}}},
		{GroupID: 2, Records: []models.HarvestedRecord{
			{URL: "i2a", Kind: models.KindImage},
			{URL: "i2b", Kind: models.KindImage},
		}},
	}

	reversal := BuildReversal(groups)

	require.Len(t, reversal, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{reversal[0].GroupID, reversal[1].GroupID, reversal[2].GroupID})
	assert.Equal(t, models.MediaTypeUnknown, reversal[0].MediaType)
	assert.Empty(t, reversal[0].ThumbnailURL)
	assert.Equal(t, "i2b", reversal[1].ImageURL, "last image wins")
	assert.Equal(t, models.MediaTypeVideoOnly, reversal[2].MediaType)
	assert.Equal(t, "v3", reversal[2].ThumbnailURL)
	assert.Equal(t, 2, reversal[2].Index)
}

func TestDeriveExtension(t *testing.T) {
	tests := []struct {
		kind models.Kind
		url  string
		want string
	}{
		{models.KindImage, "https://x/y/image.JPEG", ".jpeg"},
		{models.KindImage, "https://x/y/image.webp?cache=1", ".webp"},
		{models.KindVideo, "https://x/y/video.mp4/", ".mp4"},
		{models.KindVideo, "https://x/y/content", ".mp4"},
		{models.KindImage, "https://x/y/content", ".png"},
		{models.KindOther, "https://x/y/content", ".bin"},
		{models.KindImage, "https://x/y/archive.toolongext", ".png"},
		{models.KindImage, "https://x/y.d/noext", ".png"},
		{models.KindVideo, "::not a url", ".mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveExtension(tt.kind, tt.url))
		})
	}
}

func TestEnsureUnique(t *testing.T) {
	used := map[string]struct{}{
		"1-image.png":   {},
		"1-image-2.png": {},
		"noext":         {},
		".hidden":       {},
	}

	assert.Equal(t, "2-image.png", EnsureUnique("2-image.png", used))
	assert.Equal(t, "1-Image-3.PNG", EnsureUnique("1-Image.PNG", used))
	assert.Equal(t, "noext-2", EnsureUnique("noext", used))
	assert.Equal(t, ".hidden-2", EnsureUnique(".hidden", used))
}

func TestSessionFolderName(t *testing.T) {
	ts := time.Date(2024, 3, 7, 9, 5, 2, 0, time.Local)
	assert.Equal(t, "grok-favorites/2024-03-07_09-05-02", SessionFolderName("", ts))
	assert.Equal(t, "exports/2024-03-07_09-05-02", SessionFolderName("exports", ts))
}

func TestLimit(t *testing.T) {
	groups := []models.MediaGroup{
		{GroupID: 1, Records: []models.HarvestedRecord{{URL: "a"}, {URL: "b"}}},
		{GroupID: 2, Records: []models.HarvestedRecord{{URL: "c"}, {URL: "d"}}},
		{GroupID: 3, Records: []models.HarvestedRecord{{URL: "e"}}},
	}

	tests := []struct {
		n          int
		wantGroups int
		wantTotal  int
	}{
		{0, 3, 5},
		{-1, 3, 5},
		{1, 1, 1},
		{3, 2, 3},
		{5, 3, 5},
		{50, 3, 5},
	}

	for _, tt := range tests {
		limited := Limit(groups, tt.n)
		assert.Len(t, limited, tt.wantGroups, "n=%d", tt.n)
		assert.Equal(t, tt.wantTotal, CountRecords(limited), "n=%d", tt.n)
	}

	limited := Limit(groups, 3)
	assert.Equal(t, "c", limited[1].Records[0].URL)
	assert.Len(t, groups[1].Records, 2, "input is not modified")
}
