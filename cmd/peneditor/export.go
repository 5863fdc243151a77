package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/compose"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/starter"
)

func exportCmd() *cobra.Command {
	var (
		starterPath string
		compress    string
		dir         string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a standalone export of a starter template",
		Long: `Write the standalone document of a starter template to
PenEditor-<unix millis>.html in the target directory, optionally
compressed with gzip (.gz) or zstd (.zst).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			encoding, err := export.ParseEncoding(compress)
			if err != nil {
				return err
			}
			template, err := starter.LoadOrDefault(starterPath)
			if err != nil {
				return err
			}

			exporter := export.New(compose.New(compose.DefaultOptions()))
			artifact, err := exporter.ExportEncoded(template.Fragments(), template.Libraries, encoding)
			if err != nil {
				return err
			}

			path := filepath.Join(dir, artifact.Filename)
			if err := os.WriteFile(path, artifact.Body, 0o644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&starterPath, "starter", "", "Starter template file (defaults to the built-in one)")
	cmd.Flags().StringVar(&compress, "compress", "", "Compression: gzip or zstd")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to write the export to")

	return cmd
}
