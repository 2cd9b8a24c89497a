// Package quality scores generated content and tracks per-stage success
// rates across pipeline runs.
package quality

import (
	"math"
	"strings"
	"time"
)

// Default content length band for full length credit.
const (
	DefaultMinLength = 100
	DefaultMaxLength = 2000
)

// engagementWords are calls to action that make a post feel interactive.
var engagementWords = []string{"check", "see", "view", "explore"}

// Metrics is the quality breakdown for one piece of content.
type Metrics struct {
	Score         float64   `json:"score"`
	Length        int       `json:"length"`
	WordCount     int       `json:"word_count"`
	HasHashtags   bool      `json:"has_hashtags"`
	HasLinks      bool      `json:"has_links"`
	HasEngagement bool      `json:"has_engagement"`
	Timestamp     time.Time `json:"timestamp"`
}

// Evaluate scores content from 0 to 100. Length within [minLength, maxLength]
// earns full length credit; shorter or longer content earns partial credit.
// Completeness adds 25 points each for hashtags, links, engagement words and
// substantial word count. The two halves are weighted equally.
func Evaluate(content string, minLength, maxLength int) Metrics {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	length := len(content)
	wordCount := len(strings.Fields(content))

	var lengthScore float64
	switch {
	case length >= minLength && length <= maxLength:
		lengthScore = 100
	case length < minLength:
		lengthScore = float64(length) / float64(minLength) * 50
	default:
		lengthScore = math.Max(0, 100-float64(length-maxLength)/float64(maxLength)*50)
	}

	lower := strings.ToLower(content)
	hasHashtags := strings.Contains(content, "#")
	hasLinks := strings.Contains(content, "http") || strings.Contains(content, "github.com")
	hasEngagement := false
	for _, w := range engagementWords {
		if strings.Contains(lower, w) {
			hasEngagement = true
			break
		}
	}

	completeness := 0.0
	if hasHashtags {
		completeness += 25
	}
	if hasLinks {
		completeness += 25
	}
	if hasEngagement {
		completeness += 25
	}
	if wordCount > 50 {
		completeness += 25
	}

	score := lengthScore*0.5 + completeness*0.5

	return Metrics{
		Score:         math.Round(score*100) / 100,
		Length:        length,
		WordCount:     wordCount,
		HasHashtags:   hasHashtags,
		HasLinks:      hasLinks,
		HasEngagement: hasEngagement,
		Timestamp:     time.Now().UTC(),
	}
}
