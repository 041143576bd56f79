/*
main.go - Command-line settlement

PURPOSE:
  Settles a price list, a store directory and one or more usage logs from
  local files, prints per-store totals, the grand total and anomalies, and
  optionally writes the export.

USAGE:
  settle -prices 단가.csv -stores 매장.csv -usage 11월.csv[,12월.xlsx]
         [-out 정산.xlsx|정산.csv] [-category 택배]... [-store 강남점]...
         [-from 2024-11-01] [-to 2024-11-30] [-strict-dates] [-v]

EXIT CODES:
  0  settled
  1  input, ingest or export failure
  2  bad flags

  -category and -store may be repeated. Each value is one name, so names
  containing commas can be selected.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/warp/partner-settlement/export"
	"github.com/warp/partner-settlement/ingest"
	"github.com/warp/partner-settlement/logger"
	"github.com/warp/partner-settlement/session"
	"github.com/warp/partner-settlement/settlement"
	"github.com/warp/partner-settlement/settlement/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	prices, stores, usage, out string
	categories, storeNames     listFlag
	from, to                   string
	strictDates, verbose       bool
}

var errUsage = errors.New("usage")

// listFlag collects every occurrence of a repeated flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	if v = strings.TrimSpace(v); v != "" {
		*l = append(*l, v)
	}
	return nil
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.prices, "prices", "", "price list file (csv or xlsx)")
	fs.StringVar(&o.stores, "stores", "", "store directory file (csv or xlsx)")
	fs.StringVar(&o.usage, "usage", "", "comma-separated usage log files")
	fs.StringVar(&o.out, "out", "", "write the export to this .csv or .xlsx file")
	fs.Var(&o.categories, "category", "category to keep (repeatable)")
	fs.Var(&o.storeNames, "store", "store name to keep (repeatable)")
	fs.StringVar(&o.from, "from", "", "first usage date to keep")
	fs.StringVar(&o.to, "to", "", "last usage date to keep")
	fs.BoolVar(&o.strictDates, "strict-dates", false, "drop lines whose date cannot be parsed")
	fs.BoolVar(&o.verbose, "v", false, "log ingest details to stderr")
	if err := fs.Parse(args); err != nil {
		return o, errUsage
	}
	if o.prices == "" || o.stores == "" || o.usage == "" {
		fmt.Fprintln(stderr, "settle: -prices, -stores and -usage are required")
		fs.Usage()
		return o, errUsage
	}
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	log := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     true,
		Encoding:          "console",
		Level:             level,
		DisableStacktrace: true,
	})
	defer log.Sync()

	if err := settle(context.Background(), o, stdout, log); err != nil {
		fmt.Fprintf(stderr, "settle: %v\n", err)
		return 1
	}
	return 0
}

func settle(ctx context.Context, o options, stdout io.Writer, log *zap.Logger) error {
	bundle, err := readBundle(o)
	if err != nil {
		return err
	}

	s := session.New("cli", store.NewMemory(), log)
	reports, err := s.Load(ctx, bundle)
	if err != nil {
		return err
	}
	for _, r := range reports {
		for _, w := range r.Warnings {
			fmt.Fprintf(stdout, "warning: %s: %s\n", r.Source, w)
		}
	}

	result, err := s.Settle(ctx, settlement.Filter{
		StoreNames:  o.storeNames,
		Categories:  o.categories,
		Dates:       settlement.DateRange{From: o.from, To: o.to},
		StrictDates: o.strictDates,
	})
	if err != nil {
		return err
	}
	printResult(stdout, result)

	if o.out == "" {
		return nil
	}
	format, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(o.out), "."))
	if err != nil {
		return err
	}
	data, err := export.Render(format, result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", o.out)
	return nil
}

func readBundle(o options) (session.Bundle, error) {
	var b session.Bundle
	var err error
	if b.Prices, err = readSource(o.prices); err != nil {
		return b, err
	}
	if b.Stores, err = readSource(o.stores); err != nil {
		return b, err
	}
	for _, path := range splitList(o.usage) {
		src, err := readSource(path)
		if err != nil {
			return b, err
		}
		b.Usage = append(b.Usage, src)
	}
	return b, nil
}

func readSource(path string) (ingest.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Source{}, err
	}
	return ingest.Source{Name: filepath.Base(path), Data: data}, nil
}

func printResult(w io.Writer, r settlement.Result) {
	c := r.Counts
	fmt.Fprintf(w, "등록 품목 %d, 등록 매장 %d, 사용 내역 %d건\n\n", c.RegisteredItems, c.RegisteredStores, c.UsageRows)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "매장명\t매장코드\t건수\t금액\t")
	for _, ss := range r.Stores {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t\n", ss.StoreName, ss.StoreCode, len(ss.Lines), settlement.Won(ss.TotalAmount))
	}
	fmt.Fprintf(tw, "%s\t\t%d\t%s\t\n", export.GrandTotalLabel, r.LineCount(), settlement.Won(r.GrandTotal))
	tw.Flush()

	if items := r.UnpricedItems(); len(items) > 0 {
		fmt.Fprintf(w, "\n단가 미등록 품목: %s\n", strings.Join(items, ", "))
	}
	for _, a := range r.Anomalies {
		if a.Kind == settlement.AnomalyUnknownStore {
			fmt.Fprintf(w, "anomaly: row %d: %s\n", a.Index+1, a)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
