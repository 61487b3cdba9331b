// Package main implements the recalld CLI for building and querying the
// incident resolution cache.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/dataset"
	"github.com/fyrsmithlabs/recalld/internal/dedup"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/normalize"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

var (
	// configPath is the YAML config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recalld",
	Short: "Near-duplicate lookup cache for incident resolutions",
	Long: `recalld checks whether an incident or problem report near-duplicates a
previously resolved case and returns the prior resolution instead of
re-running analysis.

Lookups try the persistent vector collections first and fall back to a
deterministic phrase-similarity scan over the CSV datasets.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(problemCmd)
	rootCmd.AddCommand(collectionsCmd)
}

// buildCmd rebuilds the vector collections from the CSV datasets.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild vector collections from the configured datasets",
	Long: `Rebuild the incidents_cache collection from the incidents dataset, and
problems_cache from the problems dataset when one is configured.

Rebuilds are destructive: each collection is dropped and re-encoded from
scratch. Run this whenever a dataset changes.

Examples:
  recalld build
  recalld build --config recalld.yaml`,
	RunE: runBuild,
}

// lookupCmd looks up a root cause for an incident report.
var lookupCmd = &cobra.Command{
	Use:   "lookup <incident text>",
	Short: "Look up the root cause of a near-duplicate prior incident",
	Long: `Look up whether an incident report near-duplicates a resolved case and
print the prior root cause.

Examples:
  recalld lookup "Database connection failed for order #12345 at 10:30 AM"`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

// problemCmd looks up solution steps for an identified problem.
var problemCmd = &cobra.Command{
	Use:   "problem <problem text>",
	Short: "Look up the solution steps of a near-duplicate prior problem",
	Args:  cobra.ExactArgs(1),
	RunE:  runProblem,
}

// collectionsCmd lists vector collections with document counts.
var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List vector collections and their document counts",
	RunE:  runCollections,
}

// setup loads config and constructs the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openStore constructs the embedding provider and vector store.
func openStore(cfg *config.Config, logger *zap.Logger) (*vectorstore.Store, embeddings.Provider, error) {
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		CacheDir: cfg.Embedding.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	store, err := vectorstore.New(vectorstore.Config{
		Path:     cfg.VectorStore.Path,
		Compress: cfg.VectorStore.Compress,
	}, provider, logger)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	return store, provider, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Datasets.Incidents == "" {
		return fmt.Errorf("datasets.incidents is required for build")
	}

	store, provider, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	defer provider.Close()

	ctx := context.Background()
	norm := normalize.NewNormalizer()

	if err := rebuildFromCSV(ctx, store, norm, cfg.Datasets.Incidents,
		dedup.CollectionIncidents, dataset.ColumnIncidentReport, dataset.ColumnRootCause); err != nil {
		return err
	}

	if cfg.Datasets.Problems != "" {
		if err := rebuildFromCSV(ctx, store, norm, cfg.Datasets.Problems,
			dedup.CollectionProblems, dataset.ColumnProblems, dataset.ColumnSolutionSteps); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "build complete")
	return nil
}

// rebuildFromCSV loads a dataset and rebuilds one collection from it.
func rebuildFromCSV(ctx context.Context, store *vectorstore.Store, norm *normalize.Normalizer, path, collection, textColumn, resolutionColumn string) error {
	snap, err := dataset.NewCache(norm, textColumn, resolutionColumn).Load(path)
	if err != nil {
		return err
	}

	rows := make([]vectorstore.Row, len(snap.Rows))
	for i, r := range snap.Rows {
		rows[i] = vectorstore.Row{
			Text: r.Text,
			Metadata: map[string]string{
				textColumn:       r.Text,
				resolutionColumn: r.Resolution,
			},
		}
	}
	return store.Rebuild(ctx, collection, rows)
}

func runLookup(cmd *cobra.Command, args []string) error {
	return runFind(cmd, args[0], func(ctx context.Context, svc *dedup.Service, query string) (*dedup.Match, error) {
		return svc.FindRootCause(ctx, query)
	})
}

func runProblem(cmd *cobra.Command, args []string) error {
	return runFind(cmd, args[0], func(ctx context.Context, svc *dedup.Service, query string) (*dedup.Match, error) {
		return svc.FindSimilarProblem(ctx, query)
	})
}

func runFind(cmd *cobra.Command, query string, find func(context.Context, *dedup.Service, string) (*dedup.Match, error)) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, provider, err := openStore(cfg, logger)
	if err != nil {
		// No vector backend is not fatal: the phrase path still works.
		logger.Warn("vector store unavailable, using fallback path only", zap.Error(err))
		store, provider = nil, nil
	}
	if store != nil {
		defer store.Close()
		defer provider.Close()
	}

	var index dedup.VectorIndex
	if store != nil {
		index = store
	}
	svc, err := dedup.New(dedup.Config{
		IncidentsPath: cfg.Datasets.Incidents,
		ProblemsPath:  cfg.Datasets.Problems,
		Threshold:     cfg.Match.Threshold,
		Neighbors:     cfg.Match.Neighbors,
	}, index, logger)
	if err != nil {
		return err
	}

	match, err := find(context.Background(), svc, query)
	if err != nil {
		return err
	}
	if match == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "no match")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "match (similarity %.3f, %s path):\n%s\n", match.Similarity, match.Source, match.Resolution)
	return nil
}

func runCollections(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, provider, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	defer provider.Close()

	ctx := context.Background()
	names, err := store.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no collections")
		return nil
	}
	for _, name := range names {
		count, err := store.Count(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, count)
	}
	return nil
}
