package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/compose"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/starter"
)

func composeCmd() *cobra.Command {
	var (
		starterPath string
		preview     bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Print the document built from a starter template",
		Long: `Compose the fragments of a starter template into a single HTML document.
The standalone flavor is printed unless --preview is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			template, err := starter.LoadOrDefault(starterPath)
			if err != nil {
				return err
			}

			flavor := compose.Standalone
			if preview {
				flavor = compose.Preview
			}
			doc := compose.Compose(template.Fragments(), template.Libraries, flavor)

			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			if err := os.WriteFile(output, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&starterPath, "starter", "", "Starter template file (defaults to the built-in one)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Emit the preview flavor instead of the standalone one")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}
