// Package queue turns grouped harvest output into the ordered download queue
// and the reversal index used to unfavorite cards afterwards.
package queue

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"grokfav/pkg/models"
)

// DefaultSessionRoot is the folder every session folder is created under
const DefaultSessionRoot = "grok-favorites"

var extensionPattern = regexp.MustCompile(`(?i)\.[a-z0-9]{2,5}$`)

// Build converts groups into queue entries (one per record) and reversal
// entries (one per group, ordered by group id). Target paths live under
// sessionFolder and are unique ignoring case.
func Build(groups []models.MediaGroup, sessionFolder string) ([]models.QueueEntry, []models.ReversalEntry) {
	used := make(map[string]struct{})
	var entries []models.QueueEntry

	for _, group := range groups {
		for _, rec := range group.Records {
			kind := NormalizeKind(rec.Kind)
			name := EnsureUnique(fmt.Sprintf("%d-%s%s", group.GroupID, kind, DeriveExtension(kind, rec.URL)), used)
			used[strings.ToLower(name)] = struct{}{}

			entries = append(entries, models.QueueEntry{
				URL:        rec.URL,
				Kind:       kind,
				TargetPath: path.Join(sessionFolder, name),
				Label:      name,
				GroupID:    group.GroupID,
			})
		}
	}

	return entries, BuildReversal(groups)
}

// BuildReversal groups records by group id, independent of queue order. The
// last image and the last video seen for a group win.
func BuildReversal(groups []models.MediaGroup) []models.ReversalEntry {
	type pair struct{ image, video string }
	byGroup := make(map[int]*pair)
	for _, group := range groups {
		p, ok := byGroup[group.GroupID]
		if !ok {
			p = &pair{}
			byGroup[group.GroupID] = p
		}
		for _, rec := range group.Records {
			switch NormalizeKind(rec.Kind) {
			case models.KindImage:
				p.image = rec.URL
			case models.KindVideo:
				p.video = rec.URL
			}
		}
	}

	ids := make([]int, 0, len(byGroup))
	for id := range byGroup {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	reversal := make([]models.ReversalEntry, 0, len(ids))
	for index, id := range ids {
		p := byGroup[id]
		thumb := p.image
		if thumb == "" {
			thumb = p.video
		}
		reversal = append(reversal, models.ReversalEntry{
			Index:        index,
			GroupID:      id,
			ImageURL:     p.image,
			VideoURL:     p.video,
			ThumbnailURL: thumb,
			MediaType:    classify(p.image != "", p.video != ""),
			Label:        fmt.Sprintf("Favorite %d", id),
		})
	}
	return reversal
}

func classify(hasImage, hasVideo bool) models.MediaType {
	switch {
	case hasImage && hasVideo:
		return models.MediaTypeBoth
	case hasImage:
		return models.MediaTypeImageOnly
	case hasVideo:
		return models.MediaTypeVideoOnly
	default:
		return models.MediaTypeUnknown
	}
}

// NormalizeKind maps anything but image and video to other
func NormalizeKind(k models.Kind) models.Kind {
	switch k {
	case models.KindImage, models.KindVideo:
		return k
	default:
		return models.KindOther
	}
}

// DeriveExtension takes the lower-cased extension of the URL's last path
// segment, or a default for the kind.
func DeriveExtension(kind models.Kind, rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		segments := strings.Split(u.Path, "/")
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] == "" {
				continue
			}
			if m := extensionPattern.FindString(segments[i]); m != "" {
				return strings.ToLower(m)
			}
			break
		}
	}

	switch kind {
	case models.KindVideo:
		return ".mp4"
	case models.KindImage:
		return ".png"
	default:
		return ".bin"
	}
}

// EnsureUnique returns name, or name with -2, -3, ... inserted before its
// extension, whichever is first absent from used. used holds lower-cased names.
func EnsureUnique(name string, used map[string]struct{}) string {
	if _, taken := used[strings.ToLower(name)]; !taken {
		return name
	}

	stem, ext := name, ""
	if dot := strings.LastIndex(name, "."); dot > 0 {
		stem, ext = name[:dot], name[dot:]
	}
	for counter := 2; ; counter++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, counter, ext)
		if _, taken := used[strings.ToLower(candidate)]; !taken {
			return candidate
		}
	}
}

// SessionFolderName returns root/YYYY-MM-DD_HH-MM-SS for t
func SessionFolderName(root string, t time.Time) string {
	if root == "" {
		root = DefaultSessionRoot
	}
	return path.Join(root, t.Format("2006-01-02_15-04-05"))
}

// Limit keeps the first n records in document order, dropping groups left
// empty. n <= 0 keeps everything.
func Limit(groups []models.MediaGroup, n int) []models.MediaGroup {
	if n <= 0 {
		return groups
	}

	var limited []models.MediaGroup
	for _, group := range groups {
		if n == 0 {
			break
		}
		records := group.Records
		if len(records) > n {
			records = records[:n]
		}
		n -= len(records)
		if len(records) > 0 {
			limited = append(limited, models.MediaGroup{GroupID: group.GroupID, Records: records})
		}
	}
	return limited
}

// CountRecords returns the number of records across groups
func CountRecords(groups []models.MediaGroup) int {
	total := 0
	for _, g := range groups {
		total += len(g.Records)
	}
	return total
}
