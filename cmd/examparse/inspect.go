package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/edenschool/examparse/internal/exam"
	"github.com/edenschool/examparse/internal/extractor"
	"github.com/edenschool/examparse/internal/pipeline"
	"github.com/edenschool/examparse/internal/segmenter"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the plain text of one exam file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := extractor.NewRegistry(nil).Extract(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			slog.Info("extracted",
				"format", res.Format,
				"sections", res.Sections,
				"runs", res.Runs,
				"truncated_sections", res.TruncatedSections,
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return err
		},
	}
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		metaID, fileID int64
		category       string
	)
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Print the passages, questions and classifications of one exam file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pipeline.New(pipeline.Options{DryRun: true}, pipeline.Deps{
				Segmenter: segmenter.New(root.cfg.Pipeline.PassageKeyRunes),
			})
			res := p.Process(cmd.Context(), pipeline.Input{
				MetaID:   metaID,
				FileID:   fileID,
				FileName: filepath.Base(args[0]),
				Path:     args[0],
				Category: exam.Category(category),
			})
			if res.Err != nil {
				return res.Err
			}
			data, err := pipeline.MarshalAnalysis(res.Analysis)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().Int64Var(&metaID, "meta", 0, "meta id recorded in the output")
	cmd.Flags().Int64Var(&fileID, "file-id", 0, "file id recorded in the output")
	cmd.Flags().StringVar(&category, "category", "", "category hint (문학, 독서, 문법, 화작) overriding the file name")
	return cmd
}

func newGeneratedCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "generated <file.md>",
		Short: "Parse a markdown question set into questions as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			questions := segmenter.ParseGenerated(string(text), exam.Category(category))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(questions)
		},
	}
	cmd.Flags().StringVar(&category, "category", string(exam.CategoryLiterature), "category assigned to every question")
	return cmd
}
