package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"certrag/internal/domain"
	"certrag/internal/service"
)

var (
	ingestCert     string
	ingestCertName string
	ingestType     string
	ingestTitle    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Upload syllabus or sample exam files",
	Long: `Fingerprints, extracts, chunks and indexes each file. Files whose content was
already uploaded are reported as duplicates and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCert, "cert", "", "certification code, e.g. CTFL")
	ingestCmd.Flags().StringVar(&ingestCertName, "cert-name", "", "certification display name")
	ingestCmd.Flags().StringVar(&ingestType, "type", domain.DocumentTypeSyllabus, "document type: syllabus or sample_exam")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the file name)")
	_ = ingestCmd.MarkFlagRequired("cert")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	failed := 0
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		doc, err := ragService.Upload(ctx, content, service.UploadRequest{
			CertificationCode: ingestCert,
			CertificationName: ingestCertName,
			DocumentType:      ingestType,
			Title:             ingestTitle,
			Filename:          filepath.Base(path),
			SourcePath:        abs,
		})
		var dup *domain.DuplicateError
		switch {
		case errors.As(err, &dup):
			cmd.Printf("skipped %s: %v\n", path, dup)
		case err != nil:
			failed++
			cmd.PrintErrf("failed %s: %v\n", path, err)
		default:
			cmd.Printf("ingested %s as %s (%s)\n", path, doc.ID, doc.Title)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(args))
	}
	return nil
}
