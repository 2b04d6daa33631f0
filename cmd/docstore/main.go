// Command docstore loads documents from JSON or YAML seed files into a
// collection and runs queries, updates and explains against it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/docstore"
	"github.com/kartikbazzad/bunbase/docstore/internal/logger"
	"github.com/kartikbazzad/bunbase/docstore/internal/metrics"
)

type globalFlags struct {
	configFile string
	collection string
	data       []string
	indexes    []string
	open       bool
	metrics    string
}

type queryFlags struct {
	sort  string
	skip  int
	limit int
}

func (f queryFlags) options() (docstore.QueryOptions, error) {
	opts := docstore.QueryOptions{Skip: f.skip, Limit: f.limit}
	if err := parseSort(f.sort, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func commandContext() context.Context {
	return context.Background()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "docstore",
		Short:         "Query documents with indexes from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVarP(&g.collection, "collection", "c", "docs", "collection name")
	pf.StringSliceVarP(&g.data, "data", "d", nil, "seed file(s) holding a document or an array of documents")
	pf.StringArrayVarP(&g.indexes, "index", "i", nil, "index to build, as type:attr[,attr] (repeatable)")
	pf.BoolVar(&g.open, "open", false, "load the collection from the configured storage engine first")
	pf.StringVar(&g.metrics, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")

	var qf queryFlags
	addQueryFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&qf.sort, "sort", "", "sort field, as field[:asc|desc]")
		cmd.Flags().IntVar(&qf.skip, "skip", 0, "documents to skip before sorting")
		cmd.Flags().IntVar(&qf.limit, "limit", 0, "maximum documents to return")
	}

	findCmd := &cobra.Command{
		Use:   "find [query]",
		Short: "Print the documents matching a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(s *session) error {
				q, err := queryArg(args, 0)
				if err != nil {
					return err
				}
				opts, err := qf.options()
				if err != nil {
					return err
				}
				return s.find(q, opts)
			})
		},
	}
	addQueryFlags(findCmd)

	explainCmd := &cobra.Command{
		Use:   "explain [query]",
		Short: "Show the plan and compiled program for a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(s *session) error {
				q, err := queryArg(args, 0)
				if err != nil {
					return err
				}
				opts, err := qf.options()
				if err != nil {
					return err
				}
				return s.explain(q, opts)
			})
		},
	}
	addQueryFlags(explainCmd)

	countCmd := &cobra.Command{
		Use:   "count [query]",
		Short: "Count the documents matching a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(s *session) error {
				q, err := queryArg(args, 0)
				if err != nil {
					return err
				}
				return s.count(q)
			})
		},
	}

	var upsert, commit bool
	updateCmd := &cobra.Command{
		Use:   "update <query> <update>",
		Short: "Apply an update document to every match",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(s *session) error {
				q, err := queryArg(args, 0)
				if err != nil {
					return err
				}
				u, err := queryArg(args, 1)
				if err != nil {
					return err
				}
				if err := s.update(q, u, upsert); err != nil {
					return err
				}
				if commit {
					return s.coll.Commit(cmd.Context())
				}
				return nil
			})
		},
	}
	updateCmd.Flags().BoolVar(&upsert, "upsert", false, "create missing fields")
	updateCmd.Flags().BoolVar(&commit, "commit", false, "write the collection to the storage engine afterwards")

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell over the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, runShell)
		},
	}

	rootCmd.AddCommand(findCmd, explainCmd, countCmd, updateCmd, shellCmd)
	return rootCmd
}

// withSession opens the database, seeds the collection and runs fn.
func withSession(cmd *cobra.Command, g *globalFlags, fn func(*session) error) error {
	cfg, err := docstore.LoadConfig("DOCSTORE", g.configFile)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
	if g.metrics != "" {
		serveMetrics(g.metrics)
	}

	db, err := docstore.Open(cfg, docstore.NewRegistry())
	if err != nil {
		return err
	}
	defer db.Close()

	coll, err := db.Collection(g.collection)
	if err != nil {
		return err
	}
	if g.open {
		if err := coll.Open(cmd.Context()); err != nil {
			return err
		}
	}

	s := &session{db: db, coll: coll, out: cmd.OutOrStdout()}
	if err := s.ensureIndexes(g.indexes); err != nil {
		return err
	}
	docs, err := loadFiles(g.data)
	if err != nil {
		return err
	}
	if err := s.seed(docs); err != nil {
		return err
	}
	logger.Debug("collection seeded", "collection", g.collection, "documents", len(docs))
	return fn(s)
}

// serveMetrics exposes the collectors in the background for the life of the
// command.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

func queryArg(args []string, i int) (map[string]interface{}, error) {
	if i >= len(args) || args[i] == "" {
		return map[string]interface{}{}, nil
	}
	var q map[string]interface{}
	if err := json.Unmarshal([]byte(args[i]), &q); err != nil {
		return nil, fmt.Errorf("argument %d is not a JSON object: %w", i+1, err)
	}
	if q == nil {
		q = map[string]interface{}{}
	}
	return q, nil
}
