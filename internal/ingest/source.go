package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"caregiver-rag/internal/models"
)

// Source yields raw question/answer records tagged with the source name.
type Source interface {
	Name() string
	Read() ([]models.RawRecord, error)
}

// Open picks a reader by file extension, the same dispatch the document
// parsers use elsewhere.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return &CSVSource{Path: path}, nil
	case ".xlsx":
		return &XLSXSource{Path: path}, nil
	case ".md", ".markdown":
		return &MarkdownSource{Path: path}, nil
	default:
		return nil, fmt.Errorf("ingest: unsupported source type: %s", path)
	}
}

var (
	questionHeaders = map[string]bool{"question": true, "q": true, "prompt": true, "title": true}
	answerHeaders   = map[string]bool{"answer": true, "a": true, "response": true, "reply": true}
	categoryHeaders = map[string]bool{"category": true, "section": true, "topic": true}
)

type columnMap struct {
	question, answer, category int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{question: -1, answer: -1, category: -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		switch {
		case questionHeaders[key] && cols.question < 0:
			cols.question = i
		case answerHeaders[key] && cols.answer < 0:
			cols.answer = i
		case categoryHeaders[key] && cols.category < 0:
			cols.category = i
		}
	}
	if cols.question < 0 || cols.answer < 0 {
		return cols, fmt.Errorf("ingest: header has no question/answer columns: %v", header)
	}
	return cols, nil
}

func rowToRecord(row []string, cols columnMap, source string) models.RawRecord {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}
	return models.RawRecord{
		Question: cell(cols.question),
		Answer:   cell(cols.answer),
		Category: cell(cols.category),
		Source:   source,
	}
}

// CSVSource reads delimited question/answer records. The header row is
// matched case-insensitively against a few common column names.
type CSVSource struct {
	Path string
}

func (s *CSVSource) Name() string { return filepath.Base(s.Path) }

func (s *CSVSource) Read() ([]models.RawRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", s.Path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", s.Path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}
	records := make([]models.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, rowToRecord(row, cols, s.Name()))
	}
	return records, nil
}

// XLSXSource reads question/answer records from the first sheet of a
// workbook, with the same header mapping as CSV.
type XLSXSource struct {
	Path string
}

func (s *XLSXSource) Name() string { return filepath.Base(s.Path) }

func (s *XLSXSource) Read() ([]models.RawRecord, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", s.Path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("ingest: read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}
	records := make([]models.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, rowToRecord(row, cols, s.Name()))
	}
	return records, nil
}

// MarkdownSource reads a Q&A document where every level-2+ heading is a
// question and the section body its answer. A level-1 heading sets the
// category for the sections under it.
type MarkdownSource struct {
	Path string
}

func (s *MarkdownSource) Name() string { return filepath.Base(s.Path) }

func (s *MarkdownSource) Read() ([]models.RawRecord, error) {
	src, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", s.Path, err)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var records []models.RawRecord
	var category, question string
	var answer []string

	flush := func() {
		if question != "" {
			records = append(records, models.RawRecord{
				Question: question,
				Answer:   strings.Join(answer, "\n\n"),
				Category: category,
				Source:   s.Name(),
			})
		}
		question = ""
		answer = nil
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			flush()
			if h.Level == 1 {
				category = nodeText(h, src)
				continue
			}
			question = nodeText(h, src)
			continue
		}
		if question == "" {
			continue
		}
		if t := nodeText(n, src); t != "" {
			answer = append(answer, t)
		}
	}
	flush()

	return records, nil
}

func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
