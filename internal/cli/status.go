package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and catalog status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	st, err := ragService.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if statusJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Initialized: %t\n", st.Initialized)
	cmd.Printf("Records:     %d\n", st.Records)
	cmd.Printf("Embedder:    %s\n", st.Embedder)
	cmd.Printf("Unprocessed: %d\n", st.UnprocessedCount)
	codes := make([]string, 0, len(st.DocumentsByCert))
	for code := range st.DocumentsByCert {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	if len(codes) > 0 {
		cmd.Println("Documents:")
	}
	for _, code := range codes {
		cmd.Printf("  %-10s %d\n", code, st.DocumentsByCert[code])
	}
	return nil
}
