package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const budgetDoc = `# 18 Budget

Annual budget overview for the department. See section 18.2 for travel.

## 18.1 Staffing

Staffing costs are covered in full (18.3).

## 18.3 Travel

Travel is reimbursed at cost; refer to topic 19 for rules.

# 19 Rules

Rules apply to all staff members here.
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DOCMAP_RULES_FILE", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "budget.md")
	if err := os.WriteFile(path, []byte(budgetDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeWritesReports(t *testing.T) {
	doc := writeDoc(t)
	outDir := filepath.Join(t.TempDir(), "out")

	out, err := run(t, "analyze", doc, "-o", outDir)
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	if !strings.Contains(out, "budget.md: 4 topics") {
		t.Errorf("unexpected summary %q", out)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, topicMapFile))
	if err != nil {
		t.Fatal(err)
	}
	var doc2 struct {
		Metadata struct {
			TotalTopics int    `json:"total_topics"`
			Source      string `json:"source"`
		} `json:"metadata"`
		Topics map[string]json.RawMessage `json:"topics"`
	}
	if err := json.Unmarshal(raw, &doc2); err != nil {
		t.Fatalf("decode topic map: %v", err)
	}
	if doc2.Metadata.TotalTopics != 4 || doc2.Metadata.Source != "budget.md" {
		t.Errorf("unexpected metadata %+v", doc2.Metadata)
	}
	if _, ok := doc2.Topics["18.3"]; !ok {
		t.Errorf("expected topic 18.3 in map")
	}

	f, err := os.Open(filepath.Join(outDir, anomalyReportFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) < 2 || rows[0][0] != "Type" {
		t.Fatalf("unexpected csv %v", rows)
	}
	if rows[1][0] != "missing_referenced_topic" || rows[1][1] != "18 -> 18.2" {
		t.Errorf("expected the broken reference first, got %v", rows[1])
	}
}

func TestAnalyzeMinSeverity(t *testing.T) {
	doc := writeDoc(t)
	outDir := t.TempDir()
	if _, err := run(t, "analyze", doc, "-o", outDir, "--min-severity", "critical"); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(outDir, anomalyReportFile))
	if err != nil {
		t.Fatal(err)
	}
	rows, _ := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	for _, r := range rows[1:] {
		if r[2] != "critical" {
			t.Errorf("row below floor: %v", r)
		}
	}

	if _, err := run(t, "analyze", doc, "--min-severity", "extreme"); err == nil {
		t.Error("expected unknown severity to fail")
	}
}

func TestPathCommand(t *testing.T) {
	doc := writeDoc(t)

	out, err := run(t, "path", doc, "18.3", "18.1")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if strings.TrimSpace(out) != "18.3 -> 18 -> 18.1" {
		t.Errorf("unexpected path %q", out)
	}

	if _, err := run(t, "path", doc, "18.3", "19", "--hierarchy-only"); err == nil {
		t.Error("expected no hierarchy path between 18.3 and 19")
	}
}

func TestRulesFile(t *testing.T) {
	doc := writeDoc(t)
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(rules, []byte("max_cycles: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "analyze", doc, "-o", t.TempDir(), "--rules", rules); err == nil {
		t.Error("expected invalid rules to fail")
	}
	if _, err := run(t, "analyze", doc, "--rules", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected missing rules file to fail")
	}
}
