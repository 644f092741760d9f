package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/incidentreasoner/internal/kb"
	"github.com/dshills/incidentreasoner/internal/logging"
	"github.com/dshills/incidentreasoner/internal/profile"
)

type ingestFlags struct {
	configPath string
	dir        string
	stdout     io.Writer
}

func newIngestCmd() *cobra.Command {
	var f ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index the knowledge base into the persistent index",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.stdout = cmd.OutOrStdout()
			return runIngest(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&f.dir, "dir", "", "knowledge base directory (overrides kb.dir)")
	return cmd
}

func runIngest(ctx context.Context, f ingestFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(f.configPath, "")
	if err != nil {
		return err
	}
	if cfg.KB.IndexPath == "" {
		return withCode(exitCodeBadInput, errors.New("kb.index_path is required to ingest into a persistent index"))
	}
	if f.dir != "" {
		cfg.KB.Dir = f.dir
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	emb, err := newEmbedder(cfg.Embed())
	if err != nil {
		return withCode(exitCodeBadInput, fmt.Errorf("embedder: %w", err))
	}
	store, err := kb.NewStore(cfg.Store(), emb, logger)
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	n, err := store.IngestDir(ctx, cfg.KB.Dir, cfg.KB.ChunkSize, cfg.KB.ChunkOverlap)
	if err != nil {
		return withCode(exitCodeAPIError, err)
	}
	logger.Info("ingest complete", zap.Int("chunks", n), zap.Int("total", store.Count()))
	fmt.Fprintf(f.stdout, "ingested %d chunks from %s (index now holds %d)\n", n, cfg.KB.Dir, store.Count())
	return nil
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in incident profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProfiles(cmd.OutOrStdout())
		},
	}
}

func listProfiles(w io.Writer) error {
	names := profile.Names()
	sort.Strings(names)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		p, err := profile.Load(name)
		if err != nil {
			return err
		}
		marker := ""
		if name == profile.DefaultName {
			marker = " (default)"
		}
		fmt.Fprintf(tw, "%s%s\t%s\n", name, marker, p.Description)
	}
	return tw.Flush()
}
