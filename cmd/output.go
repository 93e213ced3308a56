package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want table or json)", format)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSources(w io.Writer, sources []ingest.SourceDescriptor, format string) error {
	if format == formatJSON {
		return writeJSON(w, sources)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Source", "Tier", "Root", "Data types", "Interval", "Render"})
	for _, src := range sources {
		types := make([]string, 0, len(src.DataTypes))
		for _, dt := range src.DataTypes {
			types = append(types, string(dt))
		}
		t.AppendRow(table.Row{
			src.Name,
			src.Tier,
			src.RootAddress,
			strings.Join(types, ", "),
			src.PolitenessInterval,
			src.Render,
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d sources", len(sources))})
	t.Render()
	return nil
}

func renderReport(w io.Writer, r ingest.RunReport, format string) error {
	if format == formatJSON {
		return writeJSON(w, r)
	}

	state := string(r.State)
	if r.Partial {
		state += " (partial)"
	}
	fmt.Fprintf(w, "run %s: %s in %s\n", r.RunID, state, r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))

	sources := newTable(w)
	sources.SetTitle("Sources")
	sources.AppendHeader(table.Row{"Source", "Tier", "Outcome", "Fetched", "Duration"})
	for _, s := range r.Sources {
		fetched := 0
		for _, dt := range s.DataTypes {
			if dt.Fetched {
				fetched++
			}
		}
		sources.AppendRow(table.Row{
			s.Name,
			s.Tier,
			s.Outcome,
			fmt.Sprintf("%d/%d", fetched, len(s.DataTypes)),
			s.Duration.Round(time.Millisecond),
		})
	}
	sources.Render()

	totals := newTable(w)
	totals.SetTitle("Records")
	totals.AppendHeader(table.Row{"Kind", "Extracted", "Inserted", "Updated", "Unchanged", "Rejected", "Failed"})
	totals.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	for _, kind := range ingest.EntityKinds {
		c, ok := r.Totals[kind]
		if !ok {
			continue
		}
		totals.AppendRow(table.Row{kind, c.Extracted, c.Inserted, c.Updated, c.Unchanged, c.Rejected, c.Failed})
	}
	totals.Render()

	if len(r.Errors) == 0 {
		return nil
	}
	errs := newTable(w)
	errs.SetTitle("Errors")
	errs.AppendHeader(table.Row{"Source", "Data type", "Kind", "Message"})
	entries := append([]ingest.ErrorEntry(nil), r.Errors...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Source < entries[j].Source })
	for _, e := range entries {
		errs.AppendRow(table.Row{e.Source, e.DataType, e.Kind, text.WrapSoft(e.Message, 80)})
	}
	errs.Render()
	return nil
}
