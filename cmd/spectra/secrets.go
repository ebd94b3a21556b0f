package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"spectra/pkg/config"
)

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
		Long: `Store credentials (MSF_PASSWORD, provider API keys) in .spectra/secrets.json.enc,
encrypted with a project password. Set SPECTRA_PASSWORD to skip the prompt.`,
	}
	cmd.AddCommand(newSecretsSetCmd(), newSecretsListCmd())
	return cmd
}

func newSecretsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <NAME>",
		Short: "Add or replace one secret",
		Example: `  spectra secrets set MSF_PASSWORD
  spectra secrets set ANTHROPIC_API_KEY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setupProject(); err != nil {
				return err
			}
			password, err := projectPassword()
			if err != nil {
				return err
			}
			value, err := readPassword(args[0] + ": ")
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty value for %s", args[0])
			}
			config.SetSecret(args[0], value)
			if err := config.SaveSecretsToFile(projectDir, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s\n", args[0])
			return nil
		},
	}
}

func newSecretsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := setupProject(); err != nil {
				return err
			}
			for _, name := range config.GetDecryptedSecretNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// projectPassword returns the password protecting the secrets file, asking twice
// when the file is being created.
func projectPassword() (string, error) {
	if unlockPassword != "" {
		return unlockPassword, nil
	}
	if pw := os.Getenv(envProjectPassword); pw != "" {
		return pw, nil
	}
	pw, err := readPassword("Project password: ")
	if err != nil {
		return "", err
	}
	if config.SecretsFileExists(projectDir) {
		return pw, nil
	}
	again, err := readPassword("Confirm project password: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", fmt.Errorf("passwords do not match")
	}
	return pw, nil
}
