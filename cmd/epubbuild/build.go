package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuanying/epubbuild/internal/build"
	"github.com/yuanying/epubbuild/internal/epub"
	"github.com/yuanying/epubbuild/internal/shell"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the EPUB (and MOBI) from the source tree",
		Example: `  # Build EPUB and MOBI into dist/
  epubbuild build

  # EPUB only, failing on any content warning
  epubbuild build --no-mobi --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}

			res, err := build.NewPipeline(opts).Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("build failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Built %s\n", res.Title)
			for _, fi := range res.Files {
				fmt.Fprintln(out, fi.String())
			}
			if n := len(res.Warnings); n > 0 {
				fmt.Fprintf(out, "%d warning(s)\n", n)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Bool("no-mobi", false, "Skip MOBI conversion")
	flags.Bool("strict", false, "Treat content and tool warnings as errors")
	flags.Int("max-image-width", 0, "Downscale images wider than this many pixels (default from config)")
	flags.String("source", "", "Source directory (default from config)")
	flags.String("dist", "", "Output directory (default from config)")
	return cmd
}

// readCLIOptions merges flags over the config file and environment.
func readCLIOptions(cmd *cobra.Command, _ []string) (build.Options, error) {
	logger, err := readLogger(cmd)
	if err != nil {
		return build.Options{}, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return build.Options{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("max-image-width") {
		w, _ := flags.GetInt("max-image-width")
		if w <= 0 {
			return build.Options{}, fmt.Errorf("invalid --max-image-width %d: must be > 0", w)
		}
		cfg.Images.MaxWidth = w
	}
	if v, _ := flags.GetString("source"); v != "" {
		cfg.Paths.Source = v
	}
	if v, _ := flags.GetString("dist"); v != "" {
		cfg.Paths.Dist = v
	}
	noMobi, _ := flags.GetBool("no-mobi")

	return build.Options{
		SourceDir:        cfg.Paths.Source,
		TemplateDir:      cfg.Paths.Template,
		BuildDir:         cfg.Paths.Build,
		DistDir:          cfg.Paths.Dist,
		KindlegenTempDir: cfg.Paths.KindlegenTemp,
		Manifest:         cfg.Manifest,
		Nav: epub.NavOptions{
			Placeholder:    cfg.Nav.Placeholder,
			AnchorSelector: cfg.Nav.AnchorSelector,
		},
		CoverTitle:      cfg.Guide.CoverTitle,
		TocTitle:        cfg.Guide.TocTitle,
		FontSubsetter:   cfg.Tools.FontSubsetter,
		MobiConverter:   cfg.Tools.MobiConverter,
		MobiArgs:        cfg.Tools.MobiArgs,
		MobiOKExitCodes: cfg.Tools.MobiOKExitCodes,
		NoMobi:          noMobi,
		MaxImageWidth:   cfg.Images.MaxWidth,
		JPEGQuality:     cfg.Images.JPEGQuality,
		Strict:          cfg.Strict,
		Logger:          logger,
		Runner:          shell.NewExecRunner(logger),
	}, nil
}
