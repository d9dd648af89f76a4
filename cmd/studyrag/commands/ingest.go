package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyrag-go/internal/ingestion"
	"github.com/54b3r/studyrag-go/internal/logging"
)

// NewIngestCmd constructs the `studyrag ingest` command, which chunks,
// embeds and stores one document for a student.
func NewIngestCmd() *cobra.Command {
	var owner, source, file, url string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a plain-text document for a student",
		Long: `Chunk, embed and store the extracted text of one document.

The text is read from --file, fetched from --url, or read from stdin.
Extract text from PDFs before ingesting; only plain text is accepted.

Relevant environment variables:
  VECTOR_STORE         sqlite (default), memory, qdrant
  EMBEDDING_PROVIDER   ollama, openai, azure, service (default: inherits MODEL_PROVIDER)
  CHUNK_SIZE           characters per chunk (default 1000)
  CHUNK_OVERLAP        characters shared by consecutive chunks (default 200)

Examples:
  studyrag ingest --owner alice --file lecture-3.txt
  pdftotext notes.pdf - | studyrag ingest --owner alice --source notes.pdf
  studyrag ingest --owner alice --url https://example.edu/bio/ch2.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if file != "" && url != "" {
				return fmt.Errorf("ingest: --file and --url are mutually exclusive")
			}

			flush, err := setupTracing(ctx, settings, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer flush()

			st, err := buildStack(ctx, settings, needs{embedder: true, vectors: true}, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer st.Close()

			pipeline, err := st.pipeline(settings, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			var n int
			if url != "" {
				n, err = pipeline.IngestURL(ctx, owner, url, source)
			} else {
				var text string
				text, err = readInput(cmd.InOrStdin(), file)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if source == "" {
					source = ingestion.SourceLabelFor(file)
				}
				n, err = pipeline.Ingest(ctx, ingestion.Document{OwnerID: owner, SourceLabel: source, Text: text})
			}
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("ingestion complete", slog.String("owner_id", owner), slog.Int("chunks", n))
			fmt.Fprintf(cmd.OutOrStdout(), "added %d chunks\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Student (owner) id the chunks belong to")
	cmd.Flags().StringVar(&source, "source", "", "Source label shown in answers (default: inferred from --file or --url)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Plain-text file to ingest ('-' for stdin)")
	cmd.Flags().StringVarP(&url, "url", "u", "", "URL of a plain-text document to fetch and ingest")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return string(data), nil
}
