package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dgallion1/docmap/internal/doctree"
)

// CSVParser handles CSV files. A file whose header has an "id" column is a
// topic table (id, title, content and optionally confidence); each row
// becomes one heading node with the columns kept in Attrs. Any other CSV is
// grouped into row batches of plain text.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	b := newTreeBuilder(strings.TrimSuffix(filename, ".csv"))
	if len(records) == 0 {
		return b.done(), nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	if slices.Contains(headers, "id") {
		topicTable(b, headers, records[1:])
		return b.done(), nil
	}

	// Group rows into batches of 20 for manageable sections.
	const batchSize = 20
	dataRows := records[1:]
	for i := 0; i < len(dataRows); i += batchSize {
		end := min(i+batchSize, len(dataRows))

		var text strings.Builder
		text.WriteString("Headers: " + strings.Join(records[0], ", ") + "\n\n")
		for _, row := range dataRows[i:end] {
			for j, cell := range row {
				if j < len(records[0]) {
					text.WriteString(records[0][j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
				if j < len(row)-1 {
					text.WriteString(", ")
				}
			}
			text.WriteString("\n")
		}

		b.heading(1, fmt.Sprintf("Rows %d-%d", i+2, end+1)) // 1-indexed, skip header
		b.paragraph(text.String())
	}
	return b.done(), nil
}

func topicTable(b *treeBuilder, headers []string, rows [][]string) {
	for _, row := range rows {
		attrs := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(row) && h != "" {
				attrs[h] = strings.TrimSpace(row[j])
			}
		}
		if attrs["id"] == "" {
			continue
		}
		title := strings.TrimSpace(attrs["id"] + " " + attrs["title"])
		n := b.heading(1, title)
		n.Attrs = attrs
		b.paragraph(attrs["content"])
	}
}
