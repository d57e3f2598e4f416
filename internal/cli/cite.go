package cli

import (
	"github.com/spf13/cobra"
)

var (
	citeQuery string
	citeCert  string
)

var citeCmd = &cobra.Command{
	Use:   "cite [answer]",
	Short: "Check an answer's citations against retrieved sources",
	Long: `Retrieves sources for --query and reports every parenthesised citation in the
answer that names none of them. The answer itself is not changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runCite,
}

func init() {
	citeCmd.Flags().StringVar(&citeQuery, "query", "", "question the answer responds to")
	citeCmd.Flags().StringVar(&citeCert, "cert", "", "limit retrieval to one certification code")
	_ = citeCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(citeCmd)
}

func runCite(cmd *cobra.Command, args []string) error {
	res := ragService.GetContextForQuery(cmd.Context(), citeQuery, citeCert)
	report := ragService.ValidateAnswer(args[0], res.Sources)

	cmd.Printf("Citations: %d, invalid: %d\n", len(report.Citations), len(report.Invalid))
	for _, c := range report.Invalid {
		cmd.Printf("  unknown source: %s\n", c)
	}
	if report.Valid() {
		cmd.Println("All citations match retrieved sources.")
	}
	return nil
}
