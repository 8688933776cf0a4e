package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/spigell/job-harvester/internal/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets kept in the OS keychain",
}

var secretSetCmd = &cobra.Command{
	Use:       "set <name>",
	Short:     "Store a secret in the OS keychain",
	Long:      "Store a secret in the OS keychain. Known names: " + strings.Join(knownSecrets, ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: knownSecrets,
	RunE: func(_ *cobra.Command, args []string) error {
		return setSecret(args[0], promptSecret)
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	rootCmd.AddCommand(secretCmd)
}

func promptSecret(name string) (string, error) {
	prompt := promptui.Prompt{
		Label: name,
		Mask:  '*',
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("value is empty")
			}
			return nil
		},
	}
	return prompt.Run()
}

func setSecret(name string, read func(string) (string, error)) error {
	if !slices.Contains(knownSecrets, name) {
		return fmt.Errorf("unknown secret %q, expected one of: %s", name, strings.Join(knownSecrets, ", "))
	}

	value, err := read(name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}

	if err := secrets.Store(name, value); err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}

	fmt.Printf("%s saved to the keychain\n", name)
	return nil
}
