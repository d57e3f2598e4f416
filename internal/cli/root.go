// Package cli is the command-line surface of certrag.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"certrag/internal/citation"
	"certrag/internal/domain"
	"certrag/internal/service"
)

// RAGService is the subset of the service the commands drive.
type RAGService interface {
	Upload(ctx context.Context, content []byte, req service.UploadRequest) (*domain.Document, error)
	GetContextForQuery(ctx context.Context, query, certificationCode string) domain.RetrievalResult
	Documents(ctx context.Context, certificationCode string) ([]domain.Document, error)
	RemoveDocument(ctx context.Context, id string) (int, error)
	RemoveCertification(ctx context.Context, certificationCode string) (int, error)
	ReprocessFromSource(ctx context.Context, id string) error
	ReprocessCertification(ctx context.Context, certificationCode string) (int, error)
	ValidateAnswer(answer string, sources []domain.Citation) citation.Report
	Status(ctx context.Context) (service.Status, error)
}

// Opener builds the service for one command run. interactive is set for the
// chat console so logs stay off the terminal.
type Opener func(configPath string, interactive bool) (RAGService, func() error, error)

var (
	opener     Opener
	configPath string

	ragService RAGService
	closeFn    func() error
)

// SetOpener sets how commands obtain the service.
func SetOpener(o Opener) {
	opener = o
}

var rootCmd = &cobra.Command{
	Use:   "certrag",
	Short: "Certification syllabus retrieval engine",
	Long: `certrag ingests certification syllabi and sample exams into a vector index
and retrieves cited context for questions about them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if opener == nil {
			return errors.New("service not configured")
		}
		svc, closer, err := opener(configPath, cmd == chatCmd)
		if err != nil {
			return err
		}
		ragService, closeFn = svc, closer
		return nil
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return closeService()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default ./config.yaml or ~/.config/certrag/config.yaml)")
}

func closeService() error {
	if closeFn == nil {
		return nil
	}
	err := closeFn()
	closeFn, ragService = nil, nil
	return err
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	// PostRun is skipped when RunE fails
	if cerr := closeService(); err == nil {
		err = cerr
	}
	return err
}
