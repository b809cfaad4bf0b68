package normalizer

import (
	"regexp"
	"strings"

	"caregiver-rag/internal/models"
)

var (
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	nonWordRe    = regexp.MustCompile(`[^a-z0-9\s]+`)
)

// Report counts the records dropped during normalization.
type Report struct {
	SkippedInvalid   int
	SkippedDuplicate int
}

// Normalize cleans raw records and drops invalid and duplicate ones.
// Deduplication runs across the whole input, so the same record arriving
// from two sources counts once; the first occurrence wins. Record IDs are
// assigned sequentially in acceptance order.
func Normalize(raw []models.RawRecord) ([]models.KnowledgeRecord, Report) {
	var report Report
	seen := make(map[string]bool)
	records := make([]models.KnowledgeRecord, 0, len(raw))

	for _, r := range raw {
		question := CleanText(r.Question)
		answer := CleanText(r.Answer)
		if question == "" || answer == "" {
			report.SkippedInvalid++
			continue
		}

		key := DedupKey(question)
		if seen[key] {
			report.SkippedDuplicate++
			continue
		}
		seen[key] = true

		records = append(records, models.KnowledgeRecord{
			ID:       int64(len(records) + 1),
			Question: question,
			Answer:   answer,
			Category: CleanText(r.Category),
			Source:   strings.TrimSpace(r.Source),
		})
	}

	return records, report
}

// CleanText normalizes line endings and collapses runs of spaces and tabs.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// DedupKey reduces a question to a casing- and punctuation-insensitive key.
func DedupKey(question string) string {
	key := strings.ToLower(question)
	key = nonWordRe.ReplaceAllString(key, "")
	key = strings.Join(strings.Fields(key), " ")
	return key
}
