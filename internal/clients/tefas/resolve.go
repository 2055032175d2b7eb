package tefas

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

// fundRecord is one entry of the fund registry used for name resolution.
type fundRecord struct {
	Code string `json:"FONKODU"`
	Name string `json:"FONUNVAN"`
}

// stopWords are boilerplate tokens that appear in almost every fund title
// and carry no distinguishing signal for matching.
var stopWords = map[string]bool{
	"fonu":      true,
	"fon":       true,
	"yatirim":   true,
	"menkul":    true,
	"kiymet":    true,
	"kiymetler": true,
	"portfoy":   true,
	"yonetimi":  true,
	"sirketi":   true,
	"a.s.":      true,
	"as":        true,
	"ve":        true,
	"the":       true,
	"and":       true,
	"fund":      true,
}

// Resolve maps a free-form name (typically the long-form company or fund
// title from another registry) to a unique TEFAS fund code.
//
// Matching is token-overlap scoring between normalized, stop-word-stripped
// keyword sets. The best candidate is accepted only when its score clears
// the configured threshold; a low-confidence guess is worse than no answer,
// so anything below it resolves to domain.ErrNotAvailable.
func (c *Client) Resolve(name string) (string, error) {
	wanted := keywordSet(name)
	if len(wanted) == 0 {
		return "", domain.ErrInvalidParameter
	}

	funds, err := c.listFunds()
	if err != nil {
		return "", err
	}

	bestScore := 0.0
	bestCode := ""
	for _, f := range funds {
		score := overlapScore(wanted, keywordSet(f.Name))
		if score > bestScore {
			bestScore = score
			bestCode = f.Code
		}
	}

	if bestCode == "" || bestScore < c.cfg.FuzzyThreshold {
		c.log.Debug().
			Str("name", name).
			Float64("best_score", bestScore).
			Float64("threshold", c.cfg.FuzzyThreshold).
			Msg("No fund match above threshold")
		return "", fmt.Errorf("fund %q: %w", name, domain.ErrNotAvailable)
	}

	return bestCode, nil
}

// listFunds returns the fund registry, cached with the long reference TTL.
func (c *Client) listFunds() ([]fundRecord, error) {
	key := cache.Key(sourceName, "funds")
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var funds []fundRecord
			if err := json.Unmarshal(data, &funds); err == nil {
				return funds, nil
			}
		}
	}

	form := url.Values{
		"fontip":      {"YAT"},
		"calismatipi": {"2"},
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+comparisonPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.Upstream(sourceName, "funds", 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Upstream(sourceName, "funds", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "funds", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Upstream(sourceName, "funds", 0, err)
	}

	var parsed struct {
		Data []fundRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.Upstream(sourceName, "funds", 0, fmt.Errorf("malformed payload: %w", err))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Code < parsed.Data[j].Code })
	c.store(key, parsed.Data, cache.TTLReference)
	return parsed.Data, nil
}

// keywordSet normalizes a title into its distinguishing lowercase tokens.
func keywordSet(s string) map[string]bool {
	s = strings.ToLower(normalizeTurkish(s))
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '.'
	})

	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		t = strings.Trim(t, ".")
		if len(t) < 2 || stopWords[t] {
			continue
		}
		set[t] = true
	}
	return set
}

// overlapScore is the Jaccard index of two keyword sets: identical sets
// score 1.0, disjoint sets 0.
func overlapScore(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// normalizeTurkish folds Turkish-specific letters to their ASCII
// counterparts so keyword comparison survives inconsistent upstream
// spellings.
func normalizeTurkish(s string) string {
	replacer := strings.NewReplacer(
		"ı", "i", "İ", "i",
		"ş", "s", "Ş", "s",
		"ğ", "g", "Ğ", "g",
		"ü", "u", "Ü", "u",
		"ö", "o", "Ö", "o",
		"ç", "c", "Ç", "c",
	)
	return replacer.Replace(s)
}
