package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fileupload/internal/transport"
)

func newPutCmd(s *settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "put <files...>",
		Short: "Store local files",
		Long: "Copies the given files (directories are walked) to a spool directory and runs them\n" +
			"through the upload pipeline as one multiple-file upload. The source files are kept.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			paths, err := transport.ParseArgs(args)
			if err != nil {
				return err
			}

			cfg, opts, err := s.load()
			if err != nil {
				return err
			}

			spoolDir, err := os.MkdirTemp("", "fileupload-spool-")
			if err != nil {
				return fmt.Errorf("failed to create spool directory: %w", err)
			}
			defer os.RemoveAll(spoolDir)

			req, err := transport.FromPaths(paths, opts.FileFieldName, transport.NewSpool(spoolDir), cfg.MaxFileSize)
			if err != nil {
				return err
			}

			p, err := newPipeline(ctx, cfg, opts, req)
			if err != nil {
				return err
			}
			if err := p.DetectUpload(ctx); err != nil {
				return err
			}

			if !opts.Automatic {
				for _, d := range p.Files() {
					fmt.Fprintf(cmd.OutOrStdout(), "pending\t%s\t%d\n", d.OriginalName, d.Size)
				}
				return nil
			}

			res := p.Result()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				for _, name := range res.StoredFiles {
					fmt.Fprintf(cmd.OutOrStdout(), "stored\t%s\n", name)
				}
				if len(res.Errors) > 0 {
					fmt.Fprint(cmd.ErrOrStderr(), p.ShowErrors("\n"))
				}
			}

			if failed := len(p.Files()) - len(res.StoredFiles); failed > 0 {
				return fmt.Errorf("%d of %d files not stored", failed, len(p.Files()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the pipeline result as JSON")
	return cmd
}

func newRmCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <stored-names...>",
		Short: "Remove stored files",
		Long:  "Removes files by the name the put command reported, relative to the upload directory.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, opts, err := s.load()
			if err != nil {
				return err
			}
			p, err := newPipeline(ctx, cfg, opts, nil)
			if err != nil {
				return err
			}

			failed := 0
			for _, name := range args {
				if p.RemoveFile(ctx, name) {
					fmt.Fprintf(cmd.OutOrStdout(), "removed\t%s\n", name)
					continue
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "not removed\t%s\n", name)
				failed++
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files not removed", failed, len(args))
			}
			return nil
		},
	}
}
