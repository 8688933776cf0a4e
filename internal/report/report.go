// Package report renders scored matches into the HTML artifact and the text
// summary sent at the end of a run.
package report

import (
	"bytes"
	"cmp"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "embed"

	"github.com/dustin/go-humanize"

	"github.com/spigell/job-harvester/internal/ai"
	"github.com/spigell/job-harvester/internal/posting"
)

//go:embed report.html.tmpl
var reportTemplate string

const (
	HighScore = 80
	MidScore  = 60
)

// Match is a posting together with its scoring outcome.
type Match struct {
	Posting    *posting.Posting `json:"posting"`
	Score      ai.Score         `json:"score"`
	Escalation ai.Escalation    `json:"escalation"`
	ScoredAt   time.Time        `json:"scored_at"`
}

// Meta describes the run a report belongs to.
type Meta struct {
	RunID       string
	Strategies  []string
	Harvested   int
	Skipped     int
	Scored      int
	Threshold   int
	GeneratedAt time.Time
	Final       bool
}

// Writer re-renders the whole report on every call and replaces the file
// atomically, so readers never see a half-written document.
type Writer struct {
	path string
	tmpl *template.Template
}

func NewWriter(path string) (*Writer, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"scoreClass": scoreClass,
		"comma":      func(n int) string { return humanize.Comma(int64(n)) },
		"clock":      func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &Writer{path: path, tmpl: tmpl}, nil
}

func (w *Writer) Path() string {
	return w.path
}

type view struct {
	Meta
	Matches []Match
}

func (w *Writer) Write(matches []Match, meta Meta) error {
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, view{Meta: meta, Matches: SortByScore(matches)}); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp report: %w", err)
	}

	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}

// TimestampedPath inserts the run time before the extension:
// report.html becomes report_20260102-150405.html.
func TimestampedPath(path string, at time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + at.Format("20060102-150405") + ext
}

// SortByScore returns a copy ordered by score, highest first. Ties keep
// harvest order.
func SortByScore(matches []Match) []Match {
	sorted := slices.Clone(matches)
	slices.SortStableFunc(sorted, func(a, b Match) int {
		return cmp.Compare(b.Score.Value, a.Score.Value)
	})
	return sorted
}

func scoreClass(score int) string {
	switch {
	case score >= HighScore:
		return "high"
	case score >= MidScore:
		return "mid"
	default:
		return "low"
	}
}
