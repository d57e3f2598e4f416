package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove documents and their indexed chunks",
}

var deleteDocCmd = &cobra.Command{
	Use:   "doc [doc-id]",
	Short: "Remove one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := ragService.RemoveDocument(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		cmd.Printf("Deleted document %s (%d chunks)\n", args[0], n)
		return nil
	},
}

var deleteCertCmd = &cobra.Command{
	Use:   "cert [code]",
	Short: "Remove every document of a certification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := ragService.RemoveCertification(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete certification: %w", err)
		}
		cmd.Printf("Deleted certification %s (%d chunks)\n", args[0], n)
		return nil
	},
}

func init() {
	deleteCmd.AddCommand(deleteDocCmd)
	deleteCmd.AddCommand(deleteCertCmd)
	rootCmd.AddCommand(deleteCmd)
}
