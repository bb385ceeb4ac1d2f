package main

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/yuanying/epubbuild/internal/epub"
	"github.com/yuanying/epubbuild/internal/preview"
)

func newPreviewCmd() *cobra.Command {
	var (
		host string
		port int
		nav  string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Serve the source tree for viewing in a browser",
		Long: `Serves the source directory over HTTP. The navigation document is
served with its table of contents generated. Browser rendering does not
match e-reader rendering, Kindle in particular.`,
		Example: `  # Serve src/ on http://localhost:8880
  epubbuild preview

  # Serve on all interfaces
  epubbuild preview --host 0.0.0.0 --port 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := readLogger(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			h := preview.NewRouter(preview.Options{
				Root:    cfg.Paths.Source,
				NavHref: filepath.ToSlash(nav),
				Nav: epub.NavOptions{
					Placeholder:    cfg.Nav.Placeholder,
					AnchorSelector: cfg.Nav.AnchorSelector,
				},
				Logger: logger,
			})

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			fmt.Fprintf(cmd.OutOrStdout(), "Open the table of contents at http://%s/%s\n", addr, filepath.ToSlash(nav))
			logger.Info("Preview server available", "addr", addr, "root", cfg.Paths.Source)
			return preview.ListenAndServe(cmd.Context(), addr, h, logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "Host to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", 8880, "Port to listen on")
	cmd.Flags().StringVar(&nav, "nav", preview.DefaultNavHref, "Navigation document relative to the source directory")
	return cmd
}
