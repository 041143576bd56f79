/*
filter.go - Non-mutating views over a settlement result

PURPOSE:
  Derives filtered subsets (by store, category, item, date range) from the
  canonical Result. The input is never modified.

SEMANTICS:
  A line survives when it passes EVERY supplied predicate (AND across
  dimensions). An empty predicate passes everything.

  Store settlements are rebuilt from their surviving lines, so category
  totals and TotalAmount stay consistent. Stores left with no lines are
  dropped and GrandTotal is recomputed.

DATE RANGE:
  Bounds are inclusive and either may be empty. A line whose date cannot
  be parsed is KEPT unless StrictDates is set. A bound that cannot be
  parsed is ignored.

IDEMPOTENCE:
  Apply(Apply(r, f), f) == Apply(r, f)
*/
package settlement

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTER
// =============================================================================

// DateRange is an inclusive range of usage dates. Empty bounds are open.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// IsZero reports whether neither bound is set.
func (d DateRange) IsZero() bool {
	return strings.TrimSpace(d.From) == "" && strings.TrimSpace(d.To) == ""
}

// Filter selects lines from a Result.
type Filter struct {
	StoreNames  []string  `json:"store_names,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Items       []string  `json:"items,omitempty"`
	Dates       DateRange `json:"dates,omitempty"`
	StrictDates bool      `json:"strict_dates,omitempty"`
}

// IsZero reports whether the filter passes everything.
func (f Filter) IsZero() bool {
	return len(f.StoreNames) == 0 && len(f.Categories) == 0 && len(f.Items) == 0 &&
		f.Dates.IsZero() && !f.StrictDates
}

// Apply returns a new Result containing only the lines that pass f.
// Anomalies, Counts and Categories are carried over unchanged.
func (f Filter) Apply(r Result) Result {
	stores := toSet(f.StoreNames)
	categories := toSet(f.Categories)
	items := toSet(f.Items)
	from, hasFrom := ParseDate(f.Dates.From)
	to, hasTo := ParseDate(f.Dates.To)

	out := Result{
		Stores:     []StoreSettlement{},
		GrandTotal: decimal.Zero,
		Anomalies:  r.Anomalies,
		Counts:     r.Counts,
		Categories: r.Categories,
	}

	for _, ss := range r.Stores {
		if !passes(stores, ss.StoreName) {
			continue
		}
		var lines []SettlementLine
		for _, l := range ss.Lines {
			if !passes(categories, l.Category) || !passes(items, l.ItemName) {
				continue
			}
			if !f.dateKeeps(l.Date, from, hasFrom, to, hasTo) {
				continue
			}
			lines = append(lines, l)
		}
		if len(lines) == 0 {
			continue
		}
		rebuilt := newStoreSettlement(Store{StoreName: ss.StoreName, StoreCode: ss.StoreCode}, lines)
		out.Stores = append(out.Stores, rebuilt)
		out.GrandTotal = out.GrandTotal.Add(rebuilt.TotalAmount)
	}
	return out
}

func (f Filter) dateKeeps(raw string, from time.Time, hasFrom bool, to time.Time, hasTo bool) bool {
	if !hasFrom && !hasTo && !f.StrictDates {
		return true
	}
	d, ok := ParseDate(raw)
	if !ok {
		return !f.StrictDates
	}
	if hasFrom && d.Before(from) {
		return false
	}
	if hasTo && d.After(to) {
		return false
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}

func passes(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[v]
	return ok
}

// =============================================================================
// DATES
// =============================================================================

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-1-2",
	"2006/1/2",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a usage date in any accepted layout.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// =============================================================================
// OPTIONS - Selectable values for a filter UI
// =============================================================================

// Options lists the values a filter can select from a Result.
type Options struct {
	StoreNames []string `json:"store_names"`
	Categories []string `json:"categories"`
	Items      []string `json:"items"`
	MinDate    string   `json:"min_date,omitempty"`
	MaxDate    string   `json:"max_date,omitempty"`
}

// OptionsFor collects stores, categories, items and the date span of r.
// Categories come from the price list axis, items in first-seen order.
func OptionsFor(r Result) Options {
	opts := Options{
		StoreNames: []string{},
		Categories: append([]string{}, r.Categories...),
		Items:      []string{},
	}
	seenItem := make(map[string]struct{})
	var minDate, maxDate time.Time
	for _, ss := range r.Stores {
		opts.StoreNames = append(opts.StoreNames, ss.StoreName)
		for _, l := range ss.Lines {
			if _, ok := seenItem[l.ItemName]; !ok {
				seenItem[l.ItemName] = struct{}{}
				opts.Items = append(opts.Items, l.ItemName)
			}
			d, ok := ParseDate(l.Date)
			if !ok {
				continue
			}
			if minDate.IsZero() || d.Before(minDate) {
				minDate = d
			}
			if maxDate.IsZero() || d.After(maxDate) {
				maxDate = d
			}
		}
	}
	if !minDate.IsZero() {
		opts.MinDate = minDate.Format("2006-01-02")
		opts.MaxDate = maxDate.Format("2006-01-02")
	}
	return opts
}
