// Package cli implements the fileupload command line tool.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fileupload/internal/config"
	"fileupload/internal/upload"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// settings are the flags shared by every command.
type settings struct {
	dir     string
	options []string
	envFile string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	s := &settings{}

	rootCmd := &cobra.Command{
		Use:           "fileupload",
		Short:         "Store local files through the upload pipeline",
		Long:          "Stages local files as an upload and moves them into the configured upload directory or bucket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&s.dir, "dir", "", "upload directory, used as given (overrides UPLOAD_DIR)")
	rootCmd.PersistentFlags().StringArrayVarP(&s.options, "option", "o", nil, "pipeline option as name=value (repeatable)")
	rootCmd.PersistentFlags().StringVar(&s.envFile, "env-file", ".env", "environment file to load if present")

	rootCmd.AddCommand(newPutCmd(s))
	rootCmd.AddCommand(newRmCmd(s))
	rootCmd.AddCommand(newOptionsCmd())

	return rootCmd
}

// load reads the configuration and applies --dir and -o on top of it.
func (s *settings) load() (*config.Config, upload.Options, error) {
	if err := config.LoadDotEnv(s.envFile); err != nil {
		return nil, upload.Options{}, err
	}
	cfg := config.Load()

	opts := cfg.UploadOptions()
	// Local runs never persist records.
	opts.ModelClass = ""
	opts.ModelFieldName = ""

	if s.dir != "" {
		opts.UploadDirectory = s.dir
		opts.ForceWebroot = false
	}

	for _, raw := range s.options {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, upload.Options{}, fmt.Errorf("invalid option %q: expected name=value", raw)
		}
		var err error
		if opts, err = opts.With(strings.TrimSpace(name), value); err != nil {
			return nil, upload.Options{}, err
		}
	}

	return cfg, opts, opts.Validate()
}

// newPipeline builds a pipeline over req using the configured storage
// backend.
func newPipeline(ctx context.Context, cfg *config.Config, opts upload.Options, req upload.Mapping) (*upload.Pipeline, error) {
	movers, err := cfg.Movers(ctx)
	if err != nil {
		return nil, err
	}
	return upload.New(opts, req, upload.Deps{Movers: movers})
}

func newOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List pipeline option names accepted by -o",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defaults := upload.DefaultOptions()
			for _, name := range upload.OptionNames() {
				v, err := defaults.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", name, v)
			}
			return nil
		},
	}
}
