package classifier

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/deadloked8999/exeltest/internal/grid"
)

// Meta is what the sheet says about itself outside of any block.
type Meta struct {
	ReportDate *time.Time `json:"report_date,omitempty"`
	Venue      string     `json:"venue,omitempty"`
}

var (
	dayFirstDate = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)
	isoDate      = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	venueLabel   = regexp.MustCompile(`(?i)^(клуб|заведение|площадка)\s*:?\s*(.*)$`)
)

// ParseDate extracts the first dd.mm.yyyy or yyyy-mm-dd date in s.
func ParseDate(s string) (time.Time, bool) {
	if m := dayFirstDate.FindString(s); m != "" {
		norm := strings.ReplaceAll(m, "/", ".")
		if t, err := time.Parse("2.1.2006", norm); err == nil {
			return t, true
		}
	}
	if m := isoDate.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func detectMeta(g *grid.Grid, preamble []Span, hits []headerHit) Meta {
	var m Meta
	scan := func(row int) {
		for j := 0; j < g.Width(); j++ {
			cell := g.Cell(row, j)
			if cell == "" {
				continue
			}
			if m.ReportDate == nil {
				if t, ok := ParseDate(cell); ok {
					m.ReportDate = &t
				}
			}
			if m.Venue == "" {
				if sub := venueLabel.FindStringSubmatch(cell); sub != nil {
					venue := strings.TrimSpace(sub[2])
					if venue == "" {
						venue, _ = g.Leading(row, j+1)
					}
					m.Venue = venue
				}
			}
		}
	}
	for _, s := range preamble {
		for r := s.FirstRow; r <= s.LastRow; r++ {
			scan(r)
		}
	}
	for _, h := range hits {
		scan(h.row)
	}
	if m.ReportDate == nil {
		if t, ok := ParseDate(strings.TrimSuffix(g.Name, filepath.Ext(g.Name))); ok {
			m.ReportDate = &t
		}
	}
	return m
}
