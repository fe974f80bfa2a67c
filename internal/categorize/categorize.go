// Package categorize assigns an event category from keywords in its text.
package categorize

import (
	"regexp"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/dukerupert/remind/internal/model"
)

const (
	// DefaultCacheSize bounds the number of distinct inputs remembered.
	DefaultCacheSize = 1000

	defaultConfidence = 0.3
	maxConfidence     = 0.95
)

type Result struct {
	Category   model.Category `json:"category"`
	Confidence float64        `json:"confidence"`
}

type rule struct {
	category   model.Category
	confidence float64
	keywords   []string
	patterns   []*regexp.Regexp
	// priority rules win outright on any hit and match keywords as plain
	// substrings.
	priority bool
}

var rules = []rule{
	{
		category:   model.CategoryCourt,
		confidence: 0.95,
		priority:   true,
		keywords: []string{
			"court", "hearing", "judge", "lawyer", "attorney", "trial", "probation",
			"custody", "deposition", "subpoena", "arraignment", "parole",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bcase\s*(no\.?|number|#)\s*\w+`),
			regexp.MustCompile(`\b(public defender|legal aid)\b`),
		},
	},
	{
		category:   model.CategoryRecovery,
		confidence: 0.9,
		keywords: []string{
			"sponsor", "recovery", "sobriety", "sober", "therapy", "therapist", "counseling",
			"counselor", "relapse", "support group", "12 step", "twelve step",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(aa|na|ca)\s+meeting\b`),
			regexp.MustCompile(`\b\d+\s+(days?|months?|years?)\s+(sober|clean)\b`),
		},
	},
	{
		category:   model.CategoryWork,
		confidence: 0.9,
		keywords: []string{
			"meeting", "work", "office", "client", "project", "deadline", "presentation",
			"boss", "standup", "conference", "interview", "report", "shift", "coworker",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(team|staff|board|client)\s+(meeting|call|sync)\b`),
			regexp.MustCompile(`\bq[1-4]\b`),
		},
	},
	{
		category:   model.CategoryFamily,
		confidence: 0.85,
		keywords: []string{
			"mom", "dad", "kids", "daughter", "family", "school", "birthday", "anniversary",
			"grandma", "grandpa", "wife", "husband", "sister", "brother", "parent",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(pick\s*up|drop\s*off)\s+(the\s+)?(kids|son|daughter|children)\b`),
			regexp.MustCompile(`\bmy\s+son\b`),
		},
	},
	{
		category:   model.CategoryPersonal,
		confidence: 0.8,
		keywords: []string{
			"gym", "doctor", "dentist", "haircut", "shopping", "grocery", "groceries", "workout",
			"yoga", "bank", "errand", "pharmacy", "vet", "car wash", "laundry",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(dr\.?|doctor)\s+[a-z]+`),
			regexp.MustCompile(`\b(oil change|eye exam|check\s*up)\b`),
		},
	},
}

var keywordPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp)
	for _, r := range rules {
		for _, k := range r.keywords {
			m[k] = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		}
	}
	return m
}()

// Categorizer scores text against the category rules and remembers recent
// answers in a bounded LRU cache. Safe for concurrent use.
type Categorizer struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func New(cacheSize int) *Categorizer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Categorizer{cache: lru.New(cacheSize)}
}

// Categorize returns the best category for text, or Other at 0.3 when no
// rule matches.
func (c *Categorizer) Categorize(text string) Result {
	c.mu.Lock()
	if v, ok := c.cache.Get(text); ok {
		c.mu.Unlock()
		return v.(Result)
	}
	c.mu.Unlock()

	res := Analyze(text)

	c.mu.Lock()
	c.cache.Add(text, res)
	c.mu.Unlock()
	return res
}

// Len reports how many inputs are cached.
func (c *Categorizer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Analyze scores text without caching. Keyword hits count 1 point and
// pattern hits 2. Each category's score is its rule confidence scaled by its
// share of all points, capped at 0.95; ties go to the earlier rule.
func Analyze(text string) Result {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Result{Category: model.CategoryOther, Confidence: defaultConfidence}
	}

	points := make([]int, len(rules))
	total := 0
	for i, r := range rules {
		for _, k := range r.keywords {
			if r.priority && strings.Contains(lower, k) || !r.priority && keywordPatterns[k].MatchString(lower) {
				points[i]++
			}
		}
		for _, p := range r.patterns {
			if p.MatchString(lower) {
				points[i] += 2
			}
		}
		total += points[i]
	}
	if total == 0 {
		return Result{Category: model.CategoryOther, Confidence: defaultConfidence}
	}

	best := -1
	var bestScore float64
	for i, r := range rules {
		if points[i] == 0 {
			continue
		}
		score := min(r.confidence*float64(points[i])/float64(total), maxConfidence)
		if r.priority {
			return Result{Category: r.category, Confidence: score}
		}
		if best == -1 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return Result{Category: rules[best].category, Confidence: bestScore}
}
