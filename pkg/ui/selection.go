package ui

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	errs "grokfav/pkg/errors"
	"grokfav/pkg/models"
)

// ParseSelection turns a picker answer into sorted, distinct 0-based
// indices below n. It accepts "all", "none" (or an empty answer) and comma
// separated indices and inclusive ranges such as "0,2,5-7".
func ParseSelection(input string, n int) ([]int, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	switch input {
	case "", "none", "n", "skip":
		return nil, nil
	case "all", "a":
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, errs.New(errs.ErrorTypeInvalidRequest, "range %q is reversed", part)
		}
		if lo < 0 || hi >= n {
			return nil, errs.New(errs.ErrorTypeInvalidRequest, "index %q out of range 0-%d", part, n-1)
		}
		for i := lo; i <= hi; i++ {
			seen[i] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

func parseRange(part string) (int, int, error) {
	if dash := strings.Index(part, "-"); dash > 0 {
		lo, err := strconv.Atoi(strings.TrimSpace(part[:dash]))
		if err != nil {
			return 0, 0, errs.New(errs.ErrorTypeInvalidRequest, "invalid range %q", part)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(part[dash+1:]))
		if err != nil {
			return 0, 0, errs.New(errs.ErrorTypeInvalidRequest, "invalid range %q", part)
		}
		return lo, hi, nil
	}
	v, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, errs.New(errs.ErrorTypeInvalidRequest, "invalid index %q", part)
	}
	return v, v, nil
}

// PromptReversal lists the reversal index on out and reads one selection
// line from in.
func PromptReversal(entries []models.ReversalEntry, in io.Reader, out io.Writer) ([]int, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	fmt.Fprintf(out, "\nDownloads complete. Unfavorite any of these %d favorites?\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  [%d] %-14s %-10s %s\n", e.Index, e.Label, e.MediaType, Truncate(e.ThumbnailURL, 60))
	}
	fmt.Fprint(out, "Select indices (e.g. 0,2,5-7), 'all' or 'none' [none]: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read selection: %w", err)
	}
	return ParseSelection(line, len(entries))
}
