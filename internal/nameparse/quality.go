package nameparse

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	remuxBonus         = 25
	hdrBonus           = 15
	atmosBonus         = 10
	losslessAudioBonus = 8
)

type scoredPattern struct {
	pattern *regexp.Regexp
	score   int
}

var resolutionScores = []scoredPattern{
	{regexp.MustCompile(`(?i)\b4320p\b|\b8k\b`), 100},
	{regexp.MustCompile(`(?i)\b2160p\b|\b4k\b|\buhd\b`), 90},
	{regexp.MustCompile(`(?i)\b1080p\b`), 70},
	{regexp.MustCompile(`(?i)\b1080i\b`), 65},
	{regexp.MustCompile(`(?i)\b720p\b`), 50},
	{regexp.MustCompile(`(?i)\b576p\b`), 30},
	{regexp.MustCompile(`(?i)\b480p\b`), 20},
	{regexp.MustCompile(`(?i)\b360p\b`), 10},
}

var sourceScores = []scoredPattern{
	{regexp.MustCompile(`(?i)\buhd\b.*\bblu-?ray\b|\bblu-?ray\b.*\buhd\b`), 65},
	{regexp.MustCompile(`(?i)\bblu-?ray\b|\bbd(?:rip|remux)?\b|\bbrrip\b`), 60},
	{regexp.MustCompile(`(?i)\bhd-?dvd\b`), 55},
	{regexp.MustCompile(`(?i)\bweb(?:-?dl|-?rip)?\b|\bamzn\b|\bnf\b|\bdsnp\b|\bhmax\b|\batvp\b`), 40},
	{regexp.MustCompile(`(?i)\bhdtv\b`), 35},
	{regexp.MustCompile(`(?i)\bdvd(?:rip|r|9|5)?\b`), 30},
	{regexp.MustCompile(`(?i)\bpdtv\b`), 25},
	{regexp.MustCompile(`(?i)\bsdtv\b`), 20},
	{regexp.MustCompile(`(?i)\btelecine\b|\btc\b`), 10},
	{regexp.MustCompile(`(?i)\btelesync\b|\bhdts\b`), 8},
	{regexp.MustCompile(`(?i)\bvhs\b`), 5},
	{regexp.MustCompile(`(?i)\bworkprint\b`), 3},
	{regexp.MustCompile(`(?i)\b(?:hd)?cam\b`), 1},
}

var codecScores = []scoredPattern{
	{regexp.MustCompile(`(?i)\bav1\b`), 35},
	{regexp.MustCompile(`(?i)\b[hx]\.?265\b|\bhevc\b`), 30},
	{regexp.MustCompile(`(?i)\b[hx]\.?264\b|\bavc\b`), 20},
	{regexp.MustCompile(`(?i)\bvp9\b`), 18},
	{regexp.MustCompile(`(?i)\bmpeg-?2\b`), 5},
	{regexp.MustCompile(`(?i)\bxvid\b|\bdivx\b`), 3},
}

var (
	remuxPattern    = regexp.MustCompile(`(?i)remux`)
	hdrPattern      = regexp.MustCompile(`(?i)\bhdr(?:10(?:\+|plus)?)?\b|\bdv\b|\bdovi\b|\bdolby[ .]?vision\b|\bhlg\b`)
	losslessPattern = regexp.MustCompile(`(?i)dts-?hd|true-?\s?hd|\bflac\b|\bl?pcm\b`)
	atmosPattern    = regexp.MustCompile(`(?i)atmos|dts[:-]x\b`)
)

// Quality scores a release name by resolution, source, and codec plus
// bonuses for remux, HDR, object audio, and lossless audio. Higher is better.
// Scores are informational; they never decide between colliding sources.
func Quality(name string) int {
	name = strings.ReplaceAll(name, "_", " ")
	score := bestScore(resolutionScores, name) + bestScore(sourceScores, name) + bestScore(codecScores, name)
	if remuxPattern.MatchString(name) {
		score += remuxBonus
	}
	if hdrPattern.MatchString(name) {
		score += hdrBonus
	}
	if losslessPattern.MatchString(name) {
		score += losslessAudioBonus
	}
	if atmosPattern.MatchString(name) {
		score += atmosBonus
	}
	return score
}

// QualityLabel renders a score as a star rating for operator views.
func QualityLabel(score int) string {
	stars := 1
	switch {
	case score >= 200:
		stars = 5
	case score >= 150:
		stars = 4
	case score >= 100:
		stars = 3
	case score >= 50:
		stars = 2
	}
	return strings.Repeat("★", stars) + " (" + strconv.Itoa(score) + ")"
}

func bestScore(table []scoredPattern, name string) int {
	best := 0
	for _, entry := range table {
		if entry.score > best && entry.pattern.MatchString(name) {
			best = entry.score
		}
	}
	return best
}
