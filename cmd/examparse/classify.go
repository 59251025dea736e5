package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edenschool/examparse/internal/classifier"
	"github.com/edenschool/examparse/internal/exam"
)

func newClassifyCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "classify [question text]",
		Short: "Classify one question prompt (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(b)
			}
			result := classifier.Classify(text, exam.Category(category))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "known category (문학, 독서, 문법, 화작)")
	return cmd
}

func newTypesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the question type codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := classifier.AllTypes()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(types)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tCATEGORY\tNAME\tORDER")
			for _, t := range types {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.Code, t.Category, t.NameKo, t.SortOrder)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
