package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuanying/epubbuild/internal/epub"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file.epub>",
		Short: "Check the structure of a built EPUB",
		Long: `Re-opens an EPUB and checks the container, the package document,
the navigation document and the NCX for consistency.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := readLogger(cmd)
			if err != nil {
				return err
			}

			report, err := epub.Verify(args[0])
			if report != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Title:      %s\n", report.Title)
				fmt.Fprintf(out, "Cover:      %s\n", report.CoverImage)
				fmt.Fprintf(out, "Manifest:   %d items\n", report.Manifest)
				fmt.Fprintf(out, "Spine:      %d items\n", report.Spine)
				fmt.Fprintf(out, "Nav points: %d\n", report.NavPoints)
				for _, w := range report.Warnings {
					logger.Warn(w)
				}
			}
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			return nil
		},
	}
}
