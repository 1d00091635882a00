package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/configs"
	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func newInitCmd() *cobra.Command {
	var user, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `Write a commented .amanrag.yaml into the project directory, or with
--user the defaults into the user config (~/.config/amanrag/config.yaml).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(projectDir, ".amanrag.yaml")
			if user {
				path = config.GetUserConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return amerrors.New(amerrors.ErrCodeConfigInvalid, fmt.Sprintf("%s already exists", path), nil).
					WithSuggestion("use --force to overwrite")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}

			var err error
			if user {
				err = config.NewConfig().WriteYAML(path)
			} else {
				err = os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
