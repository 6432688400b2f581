package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/memograph/internal/embedder"
	"github.com/dshills/memograph/internal/indexwriter"
	"github.com/dshills/memograph/internal/mcp"
	"github.com/dshills/memograph/internal/reconciler"
	"github.com/dshills/memograph/internal/searcher"
	"github.com/dshills/memograph/internal/storage"
	"github.com/dshills/memograph/internal/watcher"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Logs go to stderr; stdout is reserved for the MCP protocol and
	// command output
	log.SetOutput(os.Stderr)

	// A .env next to the binary is a convenience, not a requirement
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "memograph",
		Short:         "Sync and search engine for structured text documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.SetVersionTemplate(fmt.Sprintf(
		"memograph %s (built %s)\nBuild Mode: %s\nSQLite Driver: %s\nVector Extension: %v\n",
		version, buildTime, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable))

	root.AddCommand(serveCmd(), syncCmd(), searchCmd(), statusCmd(), watchCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func dbPath() string {
	if p := os.Getenv("MEMOGRAPH_DB_PATH"); p != "" {
		return p
	}
	return mcp.DefaultDBPath
}

// stack bundles the components every non-serve command needs.
type stack struct {
	store      storage.Storage
	reconciler *reconciler.Reconciler
	searcher   *searcher.Searcher
}

func openStack() (*stack, func(), error) {
	path := dbPath()
	if path == mcp.DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".memograph")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(path, "memograph.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	writer := indexwriter.New(emb)
	s := &stack{
		store:      store,
		reconciler: reconciler.New(store, writer),
		searcher:   searcher.New(store, emb),
	}

	// An index embedded with a different model must be rebuilt before any
	// command touches it
	if err := s.searcher.CheckDimension(context.Background()); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return s, func() { _ = store.Close() }, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Printf("memograph v%s starting (mode=%s driver=%s vector=%v)",
				version, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)

			server, err := mcp.NewServer(dbPath())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				log.Println("MCP server ready, listening on stdio...")
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				log.Printf("Received signal %v, shutting down...", sig)
				cancel()
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <project> <path>",
		Short: "Run one reconciliation pass over a document directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, path := args[0], args[1]
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}

			s, closeStack, err := openStack()
			if err != nil {
				return err
			}
			defer closeStack()

			report, err := s.reconciler.Sync(cmd.Context(), project, abs)
			if err != nil {
				return err
			}

			fmt.Printf("Synced %s (%s)\n", project, report.Duration.Round(time.Millisecond))
			fmt.Printf("  created:   %d\n", report.EntitiesCreated)
			fmt.Printf("  updated:   %d\n", report.EntitiesUpdated)
			fmt.Printf("  deleted:   %d\n", report.EntitiesDeleted)
			fmt.Printf("  moved:     %d\n", report.Moved)
			fmt.Printf("  unchanged: %d\n", report.Unchanged)
			fmt.Printf("  links:     %d resolved, %d unresolved\n", report.LinksResolved, report.UnresolvedLinks)
			for _, e := range report.Errors {
				fmt.Printf("  error: %s\n", e)
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		mode     string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "search <project> <query>",
		Short: "Search an indexed project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStack, err := openStack()
			if err != nil {
				return err
			}
			defer closeStack()

			project, err := s.store.GetProject(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("project %q not indexed, run sync first: %w", args[0], err)
			}

			resp, err := s.searcher.Search(cmd.Context(), searcher.SearchRequest{
				Query:     args[1],
				Mode:      searcher.SearchMode(mode),
				ProjectID: project.ID,
				Page:      page,
				PageSize:  pageSize,
			})
			if err != nil {
				return err
			}

			if resp.Degraded {
				fmt.Println("(no embedding provider configured, text-only results)")
			}
			for _, r := range resp.Results {
				fmt.Printf("%2d. [%s] %s (%s)\n", r.Rank, r.Kind, r.Title, r.FilePath)
				if r.Excerpt != "" {
					fmt.Printf("    %s\n", r.Excerpt)
				}
			}
			fmt.Printf("%d of %d results (page %d, mode %s)\n",
				len(resp.Results), resp.Total, resp.Page, resp.SearchMode)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(searcher.SearchModeHybrid), "search mode: hybrid, vector, or text")
	cmd.Flags().IntVar(&page, "page", 1, "1-based result page")
	cmd.Flags().IntVar(&pageSize, "page-size", 10, "results per page (1-100)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project>",
		Short: "Show index status and statistics for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStack, err := openStack()
			if err != nil {
				return err
			}
			defer closeStack()

			project, err := s.store.GetProject(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("project %q not indexed, run sync first: %w", args[0], err)
			}
			status, err := s.store.GetStatus(cmd.Context(), project.ID)
			if err != nil {
				return err
			}

			fmt.Printf("Project:     %s\n", project.Name)
			fmt.Printf("Root:        %s\n", project.RootPath)
			fmt.Printf("Last synced: %s\n", project.LastSyncedAt)
			fmt.Printf("Entities:    %d\n", status.EntityCount)
			fmt.Printf("Facts:       %d\n", status.FactCount)
			fmt.Printf("Links:       %d (%d unresolved)\n", status.LinkCount, status.UnresolvedLinks)
			fmt.Printf("Rows:        %d\n", status.RowCount)
			fmt.Printf("Embeddings:  %d\n", status.EmbeddingCount)
			fmt.Printf("Index size:  %.2f MB\n", status.IndexSizeMB)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var debounce int
	cmd := &cobra.Command{
		Use:   "watch <project> <path>",
		Short: "Watch a document directory and sync on changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]
			abs, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}

			s, closeStack, err := openStack()
			if err != nil {
				return err
			}
			defer closeStack()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Initial pass so the watcher starts from a settled index
			if _, err := s.reconciler.Sync(ctx, project, abs); err != nil {
				return err
			}

			w, err := watcher.New(abs, func(ctx context.Context) error {
				report, err := s.reconciler.Sync(ctx, project, abs)
				if err != nil {
					return err
				}
				s.searcher.InvalidateCache()
				log.Printf("synced %s: +%d ~%d -%d moved=%d",
					project, report.EntitiesCreated, report.EntitiesUpdated,
					report.EntitiesDeleted, report.Moved)
				return nil
			}, watcher.WithDebounce(time.Duration(debounce)*time.Millisecond))
			if err != nil {
				return err
			}
			defer w.Stop()

			if err := w.Start(ctx); err != nil {
				return err
			}
			log.Printf("watching %s for changes...", abs)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan
			log.Println("stopping watcher")
			return nil
		},
	}
	cmd.Flags().IntVar(&debounce, "debounce", 500, "debounce window in milliseconds")
	return cmd
}
