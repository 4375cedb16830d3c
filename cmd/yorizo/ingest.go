package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yorizo/yorizo/internal/indexer"
)

var (
	ingestUser    string
	ingestCompany string
	ingestWatch   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Index a directory of knowledge documents",
	Long: `Index the .txt and .md files under a directory. Files are split into
chunks, embedded, and stored. Re-running on the same directory updates the
existing chunks in place.

Examples:
  yorizo ingest ./knowledge
  yorizo ingest ./handbook --user u1 --company acme
  yorizo ingest ./knowledge --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts := indexer.IngestOptions{
			OwnerKey:  a.indexOwner(ingestUser, ingestCompany),
			CompanyID: ingestCompany,
		}

		idx := indexer.NewIndexer(a.cfg.Indexer, a.logger)
		result, err := idx.Ingest(cmd.Context(), a.store, args[0], opts)
		if result != nil {
			indexer.PrintStats(os.Stdout, result)
		}
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}

		if !ingestWatch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return idx.Watch(ctx, a.store, args[0], opts, indexer.DefaultDebounce)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "owner key for the ingested documents")
	ingestCmd.Flags().StringVar(&ingestCompany, "company", "", "company the documents belong to")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep running and re-index files as they change")
}
