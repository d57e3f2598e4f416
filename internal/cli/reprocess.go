package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-index documents from their source files",
	Long:  `Deletes the indexed chunks of a document and indexes its source file again.`,
}

var reprocessDocCmd = &cobra.Command{
	Use:   "doc [doc-id]",
	Short: "Reprocess one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ragService.ReprocessFromSource(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to reprocess document: %w", err)
		}
		cmd.Printf("Reprocessed document %s\n", args[0])
		return nil
	},
}

var reprocessCertCmd = &cobra.Command{
	Use:   "cert [code]",
	Short: "Reprocess every document of a certification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := ragService.ReprocessCertification(cmd.Context(), args[0])
		cmd.Printf("Reprocessed %d document(s) of %s\n", n, args[0])
		if err != nil {
			return fmt.Errorf("some documents failed: %w", err)
		}
		return nil
	},
}

func init() {
	reprocessCmd.AddCommand(reprocessDocCmd)
	reprocessCmd.AddCommand(reprocessCertCmd)
	rootCmd.AddCommand(reprocessCmd)
}
