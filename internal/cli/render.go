package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/snehjoshi/epochsim/internal/types"
	"github.com/snehjoshi/epochsim/pkg/client"
)

// writeTable prints header and rows as aligned columns.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// recordRows renders simulator records in flag order.
func recordRows(flags []types.Flag, recs ...[]types.Record) [][]string {
	var rows [][]string
	for _, list := range recs {
		for _, r := range list {
			row := make([]string, len(flags))
			for i, f := range flags {
				v, _ := r.Get(f)
				row[i] = v.String()
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// clientRows renders records received from a server in field order.
func clientRows(fields []string, recs []client.Record) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = formatAny(r[f])
		}
		rows = append(rows, row)
	}
	return rows
}

func formatAny(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func flagNames(flags []types.Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}

// writeView prints a server-side session view.
func writeView(w io.Writer, v *client.View) error {
	status := "paused"
	switch {
	case v.Finished:
		status = "finished"
	case v.Playing:
		status = "playing"
	}
	fmt.Fprintf(w, "session %s  %s  t=%d  cpu=%s  %s\n", v.ID, v.Algorithm, v.Time, v.Currently, status)

	keys := make([]string, 0, len(v.State))
	for k := range v.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatAny(v.State[k]))
	}
	fmt.Fprintf(w, "state  %s\n\n", strings.Join(parts, " "))

	procs := append(append([]client.Record{}, v.Processes...), v.Killed...)
	return writeTable(w, v.Fields, clientRows(v.Fields, procs))
}
