package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/agentstation/itemtype/internal/patch"
	"github.com/agentstation/itemtype/internal/reconcile"
	"github.com/agentstation/itemtype/internal/resolver"
	"github.com/agentstation/itemtype/internal/rows"
)

// SummaryToTableData renders the counters of a run as a key-value table.
func SummaryToTableData(r *reconcile.Result) Data {
	report := r.Report
	if report == nil {
		report = &patch.Report{}
	}
	return Data{
		Title:   "Run " + r.RunID,
		Headers: []string{"Property", "Value"},
		Rows: [][]string{
			{"Mode", string(r.Mode)},
			{"Dry Run", strconv.FormatBool(r.DryRun)},
			{"Rows Read", strconv.Itoa(r.RowsRead)},
			{"Lookups", strconv.FormatInt(r.Queries, 10)},
			{"Skipped", strconv.Itoa(len(r.Skipped))},
			{"Requests", strconv.Itoa(len(r.Requests))},
			{"Attempted", strconv.Itoa(report.Attempted)},
			{"Succeeded", strconv.Itoa(report.Succeeded)},
			{"Failed", strconv.Itoa(report.Failed)},
			{"Elapsed", report.Duration().Round(time.Millisecond).String()},
		},
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}

// SkipsToTableData renders skipped rows.
func SkipsToTableData(skips []reconcile.Skip) Data {
	data := Data{
		Title:           "Skipped rows",
		Headers:         []string{"Row", "Side", "Key", "Reason", "Message"},
		ColumnAlignment: []Align{AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignLeft},
	}
	for _, s := range skips {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(s.Row),
			string(s.Side),
			s.Key,
			string(s.Reason),
			s.Message,
		})
	}
	return data
}

// RequestsToTableData renders built requests.
func RequestsToTableData(requests []patch.Request) Data {
	data := Data{
		Title:           "Updates",
		Headers:         []string{"Row", "Item", "Op", "Path", "Value"},
		ColumnAlignment: []Align{AlignRight, AlignRight, AlignLeft, AlignLeft, AlignLeft},
	}
	for _, r := range requests {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(r.Row),
			r.TargetID,
			r.Operation.Op,
			r.Operation.Path,
			r.Operation.Value,
		})
	}
	return data
}

// OutcomeToTableData renders a single lookup.
func OutcomeToTableData(o resolver.Outcome) Data {
	rowsData := [][]string{
		{"Field", o.Field},
		{"Value", o.Value},
		{"Reason", string(o.Reason)},
		{"Matches", strconv.Itoa(o.Matches)},
	}
	if o.ID != "" {
		rowsData = append(rowsData, []string{"ID", o.ID})
	}
	if err := o.Err(); err != nil {
		rowsData = append(rowsData, []string{"Message", err.Error()})
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rowsData}
}

// WriteResult writes a run result. Table formats show the summary followed
// by skipped rows and failed updates; wide also lists every update.
func WriteResult(w io.Writer, format Format, r *reconcile.Result) error {
	switch format {
	case FormatJSON, FormatYAML:
		return NewFormatter(format).Format(w, r)
	}

	tables := []Data{SummaryToTableData(r)}
	if format == FormatWide && len(r.Requests) > 0 {
		tables = append(tables, RequestsToTableData(r.Requests))
	}
	if len(r.Skipped) > 0 {
		tables = append(tables, SkipsToTableData(r.Skipped))
	}
	formatter := NewFormatter(format)
	if err := formatter.Format(w, tables); err != nil {
		return err
	}
	if r.Report == nil || len(r.Report.Failures) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\nFailed updates"); err != nil {
		return err
	}
	return formatter.Format(w, r.Report.Failures)
}

// WriteRows writes extracted rows. Tables take their columns from the row
// struct tags.
func WriteRows(w io.Writer, format Format, extracted []rows.Row) error {
	if extracted == nil {
		extracted = []rows.Row{}
	}
	return NewFormatter(format).Format(w, extracted)
}

// WriteOutcome writes a single lookup.
func WriteOutcome(w io.Writer, format Format, o resolver.Outcome) error {
	switch format {
	case FormatJSON, FormatYAML:
		return NewFormatter(format).Format(w, o)
	}
	return NewFormatter(format).Format(w, OutcomeToTableData(o))
}
