package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var docsCert string

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List uploaded documents",
	Args:  cobra.NoArgs,
	RunE:  runDocs,
}

func init() {
	docsCmd.Flags().StringVar(&docsCert, "cert", "", "only list documents of this certification")
	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, _ []string) error {
	docs, err := ragService.Documents(cmd.Context(), docsCert)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i := range docs {
		state := "processed"
		if !docs[i].Processed {
			state = "unprocessed"
		}
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title:         %s\n", docs[i].Title)
		cmd.Printf("    Certification: %s\n", docs[i].CertificationCode)
		cmd.Printf("    Type:          %s\n", docs[i].DocumentType)
		cmd.Printf("    State:         %s\n", state)
		cmd.Printf("    Uploaded:      %s\n", docs[i].CreatedAt.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}
	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}
