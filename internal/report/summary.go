package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/spigell/job-harvester/internal/utils"
)

const (
	summaryTop       = 10
	summaryReasonLen = 100
)

// Summary builds the plain text digest of a run.
func Summary(matches []Match, meta Meta) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No new matches. Scored %s of %s harvested postings.",
			humanize.Comma(int64(meta.Scored)), humanize.Comma(int64(meta.Harvested)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %s %s (scored %s of %s harvested):\n",
		humanize.Comma(int64(len(matches))),
		plural(len(matches), "match", "matches"),
		humanize.Comma(int64(meta.Scored)),
		humanize.Comma(int64(meta.Harvested)),
	)

	sorted := SortByScore(matches)
	for _, m := range sorted[:min(summaryTop, len(sorted))] {
		fmt.Fprintf(&b, "\n%d/100 - %s @ %s\nLink: %s\nReason: %s\n",
			m.Score.Value,
			m.Posting.Title,
			m.Posting.Company,
			m.Posting.ApplyURL,
			utils.TruncateForLog(m.Score.Reason, summaryReasonLen),
		)
	}

	if rest := len(sorted) - summaryTop; rest > 0 {
		fmt.Fprintf(&b, "\n...and %s more in the HTML report.", humanize.Comma(int64(rest)))
	}

	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
