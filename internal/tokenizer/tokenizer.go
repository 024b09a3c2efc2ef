// Package tokenizer implements the core's pure filename → tokens pipeline
// (spec §4.1): a deterministic, side-effect-free transform from a filename
// string to series tokens, episode info, and quality info. No I/O.
package tokenizer

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Episode is the season/episode pair extracted from a filename, if any.
type Episode struct {
	Season  int
	Episode int
	HasSeason bool // flat-numbered series (OQ-3) have no season
}

// Quality holds the stripped-out quality/codec/source hints, if detected.
type Quality struct {
	Resolution string
	Codec      string
	Source     string
}

// Result is the Tokenizer's output (spec §4.1).
type Result struct {
	SeriesTokens   []string
	Episode        *Episode
	Quality        Quality
	NormalizedBase string
}

var (
	leadingTagRe = regexp.MustCompile(`^(\[[^\]]*\]|\([^)]*\))\s*([A-Za-z0-9])`)

	// Ordered episode markers: first match wins (spec §4.1 step 3).
	sxxExxRe        = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,3})`)
	nxmRe           = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,3})\b`)
	seasonEpisodeRe = regexp.MustCompile(`(?i)Season\s+(\d{1,2})\s+Episode\s+(\d{1,3})`)
	bareEpisodeRe   = regexp.MustCompile(`(?i)\bE(\d{1,4})\b`)

	yearRe = regexp.MustCompile(`^(19|20)\d{2}$`)

	qualityWords = set("1080p", "720p", "2160p", "4k", "hdtv", "bluray", "webrip", "web-dl", "web-dlmux")
	codecWords   = set("x264", "x265", "h264", "h265", "hevc", "avc")
	audioWords   = set("aac", "ac3", "dts", "flac")
	langWords    = set("ita", "eng", "sub", "dub", "multi")
	releaseWords = set("final", "repack", "proper", "extended", "remux")

	minTokenLength = 2
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Tokenize runs the full 6-step pipeline over a filename.
func Tokenize(filename string) Result {
	base := strings.TrimSuffix(filename, extOf(filename))
	base = norm.NFC.String(base)

	// Step 1: strip a leading tracker/group tag.
	base = leadingTagRe.ReplaceAllString(base, "$2")

	// Step 2: normalize separators.
	base = strings.NewReplacer(".", " ", "_", " ").Replace(base)
	base = collapseSpaces(base)

	// Step 3: extract episode marker, earliest index wins among pattern kinds.
	ep, matchStart, matchEnd := extractEpisode(base)

	// Step 4: candidate series token region.
	var head string
	if ep != nil {
		head = base[:matchStart]
	} else {
		head = truncateAtTrailingYear(base)
	}
	_ = matchEnd

	tokens := strings.Fields(head)

	// Step 5: remove quality/codec/audio/language/release tokens and
	// leading-hyphen release-group tokens matching the same vocab.
	tokens = filterStopwords(tokens)

	// Step 6: lowercase; drop short tokens and bare numeric tokens (unless
	// OQ-3's flat-numbered-series rule recognizes a trailing one as an episode).
	tokens, flatEpisode := lowercaseAndFilterNumeric(tokens)
	if ep == nil && flatEpisode != nil {
		ep = flatEpisode
	}

	return Result{
		SeriesTokens:   tokens,
		Episode:        ep,
		Quality:        extractQuality(filename),
		NormalizedBase: strings.TrimSpace(base),
	}
}

func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i:]
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractEpisode applies the ordered marker list and returns the earliest
// match by start index; on a tie the first pattern in priority order wins.
func extractEpisode(s string) (*Episode, int, int) {
	type candidate struct {
		loc  []int
		ep   Episode
	}
	var best *candidate

	consider := func(loc []int, ep Episode) {
		if loc == nil {
			return
		}
		if best == nil || loc[0] < best.loc[0] {
			best = &candidate{loc: loc, ep: ep}
		}
	}

	if loc := sxxExxRe.FindStringSubmatchIndex(s); loc != nil {
		season := atoi(s[loc[2]:loc[3]])
		episode := atoi(s[loc[4]:loc[5]])
		consider(loc, Episode{Season: season, Episode: episode, HasSeason: true})
	}
	if loc := nxmRe.FindStringSubmatchIndex(s); loc != nil {
		season := atoi(s[loc[2]:loc[3]])
		episode := atoi(s[loc[4]:loc[5]])
		consider(loc, Episode{Season: season, Episode: episode, HasSeason: true})
	}
	if loc := seasonEpisodeRe.FindStringSubmatchIndex(s); loc != nil {
		season := atoi(s[loc[2]:loc[3]])
		episode := atoi(s[loc[4]:loc[5]])
		consider(loc, Episode{Season: season, Episode: episode, HasSeason: true})
	}
	if loc := bareEpisodeRe.FindStringSubmatchIndex(s); loc != nil {
		episode := atoi(s[loc[2]:loc[3]])
		consider(loc, Episode{Episode: episode, HasSeason: false})
	}

	if best == nil {
		return nil, -1, -1
	}
	ep := best.ep
	return &ep, best.loc[0], best.loc[1]
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func truncateAtTrailingYear(s string) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if yearRe.MatchString(tok) {
			return strings.Join(tokens[:i], " ")
		}
	}
	return s
}

func filterStopwords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		bare := strings.ToLower(strings.TrimPrefix(tok, "-"))
		if qualityWords[bare] || codecWords[bare] || audioWords[bare] || langWords[bare] || releaseWords[bare] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

var numericRe = regexp.MustCompile(`^\d+$`)

// lowercaseAndFilterNumeric implements step 6, resolving OQ-3: a bare numeric
// token is kept as a flat-numbered-series episode index only when it is
// 2-4 digits and is the last remaining token after stopword removal (see
// DESIGN.md OQ-3).
func lowercaseAndFilterNumeric(tokens []string) ([]string, *Episode) {
	out := make([]string, 0, len(tokens))
	var flatEpisode *Episode

	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		if len(lower) < minTokenLength {
			continue
		}
		if numericRe.MatchString(lower) {
			isLast := i == len(tokens)-1
			if isLast && len(lower) >= 2 && len(lower) <= 4 {
				n := atoi(lower)
				flatEpisode = &Episode{Episode: n, HasSeason: false}
			}
			continue
		}
		out = append(out, lower)
	}
	return out, flatEpisode
}

func extractQuality(filename string) Quality {
	lower := strings.ToLower(filename)
	var q Quality
	for w := range qualityWords {
		if strings.Contains(lower, w) {
			q.Resolution = w
			break
		}
	}
	for w := range codecWords {
		if strings.Contains(lower, w) {
			q.Codec = w
			break
		}
	}
	switch {
	case strings.Contains(lower, "bluray"):
		q.Source = "bluray"
	case strings.Contains(lower, "webrip"):
		q.Source = "webrip"
	case strings.Contains(lower, "web-dl"):
		q.Source = "web-dl"
	case strings.Contains(lower, "hdtv"):
		q.Source = "hdtv"
	}
	return q
}
