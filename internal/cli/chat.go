package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"certrag/internal/tui"
)

var chatCert string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive retrieval console",
	Long: `Opens a terminal console for asking questions against the index.

Commands:
  /cert CODE  limit retrieval to one certification
  /cert       search all certifications
  /quit       leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatCert, "cert", "", "initial certification scope")
	rootCmd.AddCommand(chatCmd)
}

func runChat(_ *cobra.Command, _ []string) error {
	p := tea.NewProgram(tui.New(ragService, chatCert), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console error: %w", err)
	}
	return nil
}
