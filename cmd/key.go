package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	keySetDefault bool
	keyForce      bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage private keys for the local connector",
	Long: `Private keys are kept in the OS keychain. On Linux without a desktop
session they fall back to an encrypted file under the config directory,
unlocked with the password in W3LINK_KEYRING_PASSWORD or typed at a prompt.`,
}

var keyImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import a hex private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hexKey, err := readSecret("Private key (hex): ")
		if err != nil {
			return err
		}
		ks, err := openKeystore()
		if err != nil {
			return err
		}
		entry, err := ks.Import(args[0], hexKey)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Imported %q → %s", entry.Name, ui.Addr(entry.Address.Hex()))))

		if keySetDefault || cfg.DefaultKey == "" {
			cfg.DefaultKey = entry.Name
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.Meta("  Default key for the local connector"))
		}
		return nil
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := openKeystore()
		if err != nil {
			return err
		}
		entries, err := ks.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(ui.Meta("No keys. Import one with: w3link key import <name>"))
			return nil
		}
		t := ui.NewTable(ui.Column{Title: "Name", Width: 12}, ui.Column{Title: "Address"})
		for _, e := range entries {
			name := e.Name
			if e.Name == cfg.DefaultKey {
				name = ui.StyleSelected.Render(name) + ui.Meta(" *")
			}
			t.AddRow(name, ui.Addr(e.Address.Hex()))
		}
		fmt.Print(t.Render())
		return nil
	},
}

var keyRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a key from the keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !keyForce && !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete key %q? This cannot be undone.", name)) {
			fmt.Println(ui.Warn("Cancelled"))
			return nil
		}
		ks, err := openKeystore()
		if err != nil {
			return err
		}
		if err := ks.Remove(name); err != nil {
			return err
		}
		if cfg.DefaultKey == name {
			cfg.DefaultKey = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Println(ui.Success(fmt.Sprintf("Removed key %q", name)))
		return nil
	},
}

// readSecret reads a line without echo from a terminal, or a plain line
// from piped input.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func init() {
	keyImportCmd.Flags().BoolVar(&keySetDefault, "default", false, "make this the default key")
	keyRemoveCmd.Flags().BoolVarP(&keyForce, "force", "f", false, "skip the confirmation prompt")
	keyCmd.AddCommand(keyImportCmd, keyListCmd, keyRemoveCmd)
}
