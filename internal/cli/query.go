package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"certrag/internal/domain"
)

var (
	queryCert string
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve context and sources for a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryCert, "cert", "", "limit retrieval to one certification code")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the retrieval result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	res := ragService.GetContextForQuery(cmd.Context(), args[0], queryCert)
	if queryJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printResult(cmd, res)
	return nil
}

func printResult(cmd *cobra.Command, res domain.RetrievalResult) {
	if !res.RetrievalSuccessful {
		cmd.Println("No relevant context found.")
		return
	}
	cmd.Println("Sources:")
	for i, s := range res.Sources {
		cmd.Printf("  [%d] %s (%s, %s)\n", i+1, s.Title, s.CertificationCode, s.DocumentType)
	}
	cmd.Println()
	cmd.Println(res.Context)
}
