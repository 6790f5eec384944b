// sharetool inspects and resolves share records locally: it evaluates the
// gate, recovers the share key from a fragment or password and prints the
// decrypted tree. Useful for debugging share records without a server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sharecrypt "github.com/lumidrive/sharecrypt"
)

var (
	flagFragment string
	flagPassword string
	flagVerbose  bool
	flagOutput   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sharetool",
	Short:         "Inspect and resolve encrypted share records",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	resolveCmd.Flags().StringVar(&flagFragment, "fragment", "", "base64 key fragment from the share link")
	resolveCmd.Flags().StringVar(&flagPassword, "password", "", "share password")
	mkshareCmd.Flags().StringVar(&flagPassword, "password", "", "protect the share with a password")
	mkshareCmd.Flags().StringVarP(&flagOutput, "output", "o", "share.json", "where to write the share record")

	rootCmd.AddCommand(inspectCmd, resolveCmd, mkshareCmd)
}

func newVault() (*sharecrypt.Vault, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if flagVerbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return sharecrypt.Init(&sharecrypt.Config{Logger: logger})
}

func loadShare(path string) (*sharecrypt.Share, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read share record: %w", err)
	}
	var share sharecrypt.Share
	if err := json.Unmarshal(raw, &share); err != nil {
		return nil, fmt.Errorf("failed to decode share record: %w", err)
	}
	return &share, nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <share.json>",
	Short: "Print a share's gate state and flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		share, err := loadShare(args[0])
		if err != nil {
			return err
		}

		kind := "file"
		if share.IsFolder {
			kind = "folder"
		}
		state := sharecrypt.NewShareGate(share).State()

		fmt.Printf("Share:      %s\n", share.ID)
		fmt.Printf("Kind:       %s (%s)\n", kind, share.RootID())
		fmt.Printf("State:      %s\n", colorState(state))
		fmt.Printf("Password:   %v\n", share.HasPassword())
		fmt.Printf("Views:      %d", share.Views)
		if share.ViewLimit > 0 {
			fmt.Printf(" / %d", share.ViewLimit)
		}
		fmt.Println()
		if share.ExpiresAt != nil {
			fmt.Printf("Expires:    %s\n", share.ExpiresAt)
		}
		fmt.Printf("Manifest:   unified=%v legacy_items=%d\n", share.EncryptedManifest != nil, len(share.Items))
		fmt.Printf("PQ channel: %v\n", len(share.PQEncapsulation) > 0)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <share.json>",
	Short: "Resolve the share key and print the decrypted tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		share, err := loadShare(args[0])
		if err != nil {
			return err
		}
		vault, err := newVault()
		if err != nil {
			return err
		}
		defer vault.Close()

		view, err := vault.OpenShare(share, sharecrypt.Credentials{
			Fragment: flagFragment,
			Password: flagPassword,
		})
		if err != nil {
			return err
		}

		fmt.Println(color.GreenString("unlocked"), view.Tree.RootName)
		if view.Tree.Root != nil && share.IsFolder {
			printTree(view.Tree.Root, 0)
		}
		return nil
	},
}

var mkshareCmd = &cobra.Command{
	Use:   "mkshare <directory>",
	Short: "Build a demo folder share from a local directory listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		entries, err := collectEntries(dir)
		if err != nil {
			return err
		}

		result, err := sharecrypt.BuildFolderShare(filepath.Base(dir), entries, sharecrypt.ShareOptions{
			Password: flagPassword,
		})
		if err != nil {
			return err
		}

		raw, err := json.MarshalIndent(result.Share, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(flagOutput, raw, 0600); err != nil {
			return fmt.Errorf("failed to write share record: %w", err)
		}

		fmt.Printf("Wrote %s (%d items)\n", flagOutput, len(entries))
		if result.Fragment != "" {
			fmt.Println("Fragment:", color.CyanString(result.Fragment))
		} else {
			fmt.Println("Protected by password; no fragment issued")
		}
		return nil
	},
}

// collectEntries walks dir and maps it onto folder-share entries, using the
// relative path as a stable entry id so parent links can be resolved.
func collectEntries(dir string) ([]sharecrypt.FolderEntry, error) {
	var entries []sharecrypt.FolderEntry
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}

		entry := sharecrypt.FolderEntry{
			ID:   rel,
			Name: info.Name(),
		}
		if parent := filepath.Dir(rel); parent != "." {
			entry.ParentID = parent
		}
		if info.IsDir() {
			entry.Type = sharecrypt.ItemFolder
		} else {
			entry.Type = sharecrypt.ItemFile
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return entries, nil
}

func printTree(node *sharecrypt.Node, depth int) {
	for _, child := range node.Children {
		indent := strings.Repeat("  ", depth+1)
		if child.Type == sharecrypt.ItemFolder {
			fmt.Printf("%s%s/\n", indent, color.BlueString(child.Name))
			printTree(child, depth+1)
		} else {
			fmt.Printf("%s%s (%d bytes)\n", indent, child.Name, child.Size)
		}
	}
}

func colorState(state sharecrypt.GateState) string {
	switch state {
	case sharecrypt.StateUnlocked:
		return color.GreenString(state.String())
	case sharecrypt.StatePasswordRequired:
		return color.YellowString(state.String())
	default:
		return color.RedString(state.String())
	}
}
