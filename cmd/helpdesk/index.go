package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/helpdesk/internal/ingest"
	"github.com/fyrsmithlabs/helpdesk/internal/services"
)

var (
	indexDataDir string
	indexWatch   bool
	indexJSON    bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the manual and QA indexes",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Build the keyword and vector indexes from a data directory",
	Long: `Build both indexes from a data directory.

Manuals (*.md, *.txt) are chunked into the keyword index. QA corpora
(*.csv with question and answer columns) are embedded into the vector
collection. Re-running is safe: documents with the same ID are replaced.

With --watch the command keeps running and rebuilds the keyword index
whenever a manual changes.

Examples:
  helpdesk index create --data ./data
  helpdesk index create --data ./data --watch`,
	RunE: runIndexCreate,
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the keyword index and the vector collection",
	RunE:  runIndexDelete,
}

func init() {
	indexCreateCmd.Flags().StringVar(&indexDataDir, "data", "", "data directory with manuals and QA files")
	indexCreateCmd.Flags().BoolVar(&indexWatch, "watch", false, "rebuild the keyword index when manuals change")
	_ = indexCreateCmd.MarkFlagRequired("data")

	indexCmd.PersistentFlags().BoolVar(&indexJSON, "json", false, "print the report as JSON")
	indexCmd.AddCommand(indexCreateCmd)
	indexCmd.AddCommand(indexDeleteCmd)
}

func runIndexCreate(cmd *cobra.Command, _ []string) error {
	info, err := os.Stat(indexDataDir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory: %s is not a directory", indexDataDir)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	reg, err := services.NewIndexing(ctx, services.Options{Config: env.cfg, Logger: env.logger})
	if err != nil {
		return err
	}
	defer reg.Close()

	report, err := reg.Indexer().Create(ctx, indexDataDir)
	if err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	if err := writeReport(cmd.OutOrStdout(), report, indexJSON, func(w io.Writer) {
		fmt.Fprintf(w, "Keyword index: %s (%d chunks from %d manuals)\n",
			report.KeywordIndex, report.ManualChunks, report.ManualFiles)
		if report.Collection != "" {
			fmt.Fprintf(w, "Collection:    %s (%d rows from %d QA files, created=%t)\n",
				report.Collection, report.QARows, report.QAFiles, report.CollectionCreated)
		}
	}); err != nil {
		return err
	}

	if !indexWatch {
		return nil
	}
	out := cmd.ErrOrStderr()
	return reg.Indexer().Watch(ctx, indexDataDir, ingest.DefaultDebounce, func(chunks int, err error) {
		if err != nil {
			fmt.Fprintf(out, "rebuild failed: %v\n", err)
			return
		}
		fmt.Fprintf(out, "keyword index rebuilt: %d chunks\n", chunks)
	})
}

func runIndexDelete(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	reg, err := services.NewIndexing(ctx, services.Options{Config: env.cfg, Logger: env.logger})
	if err != nil {
		return err
	}
	defer reg.Close()

	report, err := reg.Indexer().Delete(ctx)
	if err != nil {
		return fmt.Errorf("deleting indexes: %w", err)
	}
	return writeReport(cmd.OutOrStdout(), report, indexJSON, func(w io.Writer) {
		fmt.Fprintf(w, "Keyword index: %s (deleted=%t)\n", report.KeywordIndex, report.KeywordDeleted)
		if report.Collection != "" {
			fmt.Fprintf(w, "Collection:    %s (deleted=%t)\n", report.Collection, report.CollectionDeleted)
		}
	})
}

func writeReport(w io.Writer, report any, asJSON bool, text func(io.Writer)) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	text(w)
	return nil
}
