package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/epochsim/internal/catalog"
	"github.com/snehjoshi/epochsim/internal/scheduler"
)

func newAlgorithmsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List the available scheduling algorithms and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.Default()
			out := cmd.OutOrStdout()
			if asJSON {
				type entry struct {
					Name   string           `json:"name"`
					Schema scheduler.Schema `json:"schema"`
				}
				var list []entry
				for _, d := range cat.All() {
					list = append(list, entry{Name: d.Name(), Schema: d.Schema()})
				}
				return writeJSON(out, list)
			}
			for i, d := range cat.All() {
				if i > 0 {
					fmt.Fprintln(out)
				}
				if err := writeSchema(out, d.Name(), d.Schema()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print schemas as JSON")
	return cmd
}

func writeSchema(w io.Writer, name string, s scheduler.Schema) error {
	fmt.Fprintf(w, "%s\n\n", name)
	var rows [][]string
	add := func(group string, fields []scheduler.Field) {
		for _, f := range fields {
			lo := "-"
			if f.Min != nil {
				lo = strconv.Itoa(*f.Min)
			}
			rows = append(rows, []string{group, string(f.Flag), f.Kind.String(), lo, f.Name})
		}
	}
	add("param", s.AlgorithmIn)
	add("state", s.AlgorithmInternal)
	add("output", s.AlgorithmOut)
	add("process", s.ProcessIn)
	add("process-internal", s.ProcessInternal)
	add("process-output", s.ProcessOut)
	return writeTable(w, []string{"group", "flag", "kind", "min", "label"}, rows)
}
