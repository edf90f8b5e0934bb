package nameparse

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	videoExtPattern  = regexp.MustCompile(`(?i)\.(?:mkv|mp4|avi|mov|wmv|flv|webm|m4v|mpg|mpeg|ts|vob|m2ts)$`)
	leadingGroupPat  = regexp.MustCompile(`^\s*\[[^\]]*\]\s*`)
	codecDotPattern  = regexp.MustCompile(`(?i)\b([hx])\.(26[45])\b`)
	audioDotPattern  = regexp.MustCompile(`(?i)\b(ddp?|e?ac3|aac|dts|truehd|opus|flac)(\d)\.(\d)\b`)
	separatorPattern = regexp.MustCompile(`[._\[\](){}/\\]+`)
	spacePattern     = regexp.MustCompile(`\s+`)
	tokenPattern     = regexp.MustCompile(`\S+`)
	yearPattern      = regexp.MustCompile(`\b(\d{4})\b`)

	multiEpisodePattern = regexp.MustCompile(`(?i)\bS(\d{1,2})\s?E(\d{1,3})(?:\s?-?\s?E(\d{1,3})|-(\d{1,3}))?\b`)
	seasonEpisodeWords  = regexp.MustCompile(`(?i)\bSeason\s?(\d{1,2})\s?-?\s?Episode\s?(\d{1,3})\b`)
	crossEpisodePattern = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	episodeWordPattern  = regexp.MustCompile(`(?i)\bEpisode\s?(\d{1,3})\b`)
	episodeOnlyPattern  = regexp.MustCompile(`(?i)\bEp?(\d{2,3})\b`)
	seasonWordPattern   = regexp.MustCompile(`(?i)\bSeason\s?(\d{1,2})\b`)
	seasonShortPattern  = regexp.MustCompile(`(?i)\bS(\d{1,2})\b`)
	seriesMarkerPattern = regexp.MustCompile(`(?i)\b(?:Complete\s?Series|Batch)\b`)

	resolutionTagPattern = regexp.MustCompile(`^\d{3,4}[pi]$`)
	audioTagPattern      = regexp.MustCompile(`^(?:ddp?|e?ac3|aac|dts|truehd|opus|flac)\d{0,2}$`)

	genericNamePattern = regexp.MustCompile(`(?i)^(?:title\s?t?\d+|disc\s?\d+|disk\s?\d+|cd\s?\d+|dvd\s?\d+|part\s?\d+|track\s?\d+|vts\s?\d+(?:\s\d+)?)$`)
)

// releaseTags lists lowercase tokens that end the title portion of a name.
var releaseTags = map[string]struct{}{
	// resolution
	"4k": {}, "uhd": {}, "8k": {},
	// source
	"bluray": {}, "blu-ray": {}, "bdrip": {}, "brrip": {}, "bdremux": {}, "bd": {},
	"web-dl": {}, "webdl": {}, "webrip": {}, "hdtv": {}, "pdtv": {}, "sdtv": {},
	"dvdrip": {}, "dvd": {}, "dvdscr": {}, "hdrip": {}, "remux": {}, "hddvd": {},
	"hdcam": {}, "telesync": {}, "telecine": {},
	"amzn": {}, "nf": {}, "dsnp": {}, "hmax": {}, "atvp": {}, "hulu": {},
	// codec
	"x264": {}, "x265": {}, "h264": {}, "h265": {}, "hevc": {}, "avc": {}, "av1": {},
	"xvid": {}, "divx": {}, "vp9": {}, "10bit": {}, "8bit": {}, "hi10p": {},
	// audio
	"atmos": {}, "dts-hd": {}, "dts-x": {}, "dtsx": {}, "lpcm": {}, "pcm": {},
	// edition and noise
	"proper": {}, "repack": {}, "extended": {}, "unrated": {}, "hdr": {}, "hdr10": {},
	"hdr10plus": {}, "dv": {}, "dovi": {}, "imax": {}, "remastered": {}, "directors": {},
	"uncut": {}, "limited": {}, "internal": {}, "multi": {}, "subbed": {}, "dubbed": {},
	"criterion": {}, "theatrical": {},
}

// genericNames are container names that say nothing about the content.
var genericNames = map[string]struct{}{
	"video": {}, "movie": {}, "film": {}, "sample": {}, "feature": {}, "main": {},
	"episode": {}, "untitled": {}, "title": {}, "bonus": {}, "extras": {}, "media": {},
}

func isReleaseTag(token string) bool {
	token = strings.ToLower(strings.Trim(token, "-+"))
	if token == "" {
		return false
	}
	if matchesTag(token) {
		return true
	}
	// x264-GROUP style suffixes
	if head, _, ok := strings.Cut(token, "-"); ok && matchesTag(head) {
		return true
	}
	return false
}

func matchesTag(token string) bool {
	if _, ok := releaseTags[token]; ok {
		return true
	}
	return resolutionTagPattern.MatchString(token) || audioTagPattern.MatchString(token)
}

// IsMeaningless reports whether a parsed title is too generic to identify:
// digits or punctuation only, two characters or fewer, or a container name.
func IsMeaningless(title string) bool {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= 2 {
		return true
	}
	hasLetter := false
	for _, r := range title {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return true
	}
	if _, ok := genericNames[strings.ToLower(title)]; ok {
		return true
	}
	return genericNamePattern.MatchString(title)
}
