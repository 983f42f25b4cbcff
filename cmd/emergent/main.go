// Package main provides the emergent CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cokac/emergent/pkg/config"
	"github.com/cokac/emergent/pkg/emergent"
	"github.com/cokac/emergent/pkg/gate"
	"github.com/cokac/emergent/pkg/graph"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	flagConfig  string
	flagDataDir string
	flagEngine  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "emergent",
		Short: "emergent - append-only collaboration graph with emergence metrics",
		Long: `emergent maintains the shared knowledge graph of a two-contributor
collaboration and measures how much genuine emergence the collaboration
produces.

Features:
  • Append-only graph of typed nodes and relations
  • Emergence metrics: CSER, DCI, edge span, node age diversity
  • Pair recommendations with predicted emergence deltas
  • Execution gating on macro/tech section diversity
  • Versioned JSON export and import`,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (badger engine)")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "Store engine: memory or badger")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("emergent v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newAddNodeCmd())
	rootCmd.AddCommand(newAddEdgeCmd())
	rootCmd.AddCommand(newNodeCmd())
	rootCmd.AddCommand(newEdgeCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newMetricsCmd())
	rootCmd.AddCommand(newRecommendCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newOutcomeCmd())
	rootCmd.AddCommand(newGateCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newImportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective config from file, environment and flags.
// The CLI defaults to the badger engine so state survives between
// invocations; the library default stays "memory".
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	cfg.Engine = config.EngineBadger
	if flagConfig != "" {
		if err := cfg.LoadFile(flagConfig); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if flagEngine != "" {
		cfg.Engine = flagEngine
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDB() (*emergent.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return emergent.Open(cfg)
}

// withDB opens the DB, runs fn, and closes it regardless of the outcome.
func withDB(fn func(*emergent.DB) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new emergent database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Engine == config.EngineBadger {
				if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
					return err
				}
			}
			return withDB(func(db *emergent.DB) error {
				fmt.Printf("Initialized %s store", cfg.Engine)
				if cfg.Engine == config.EngineBadger {
					fmt.Printf(" at %s", cfg.DataDir)
				}
				fmt.Println()
				return nil
			})
		},
	}
}

func newAddNodeCmd() *cobra.Command {
	var (
		source  string
		typ     string
		content string
		tags    []string
		cycle   int
	)
	cmd := &cobra.Command{
		Use:   "add-node",
		Short: "Append a node to the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeType, err := graph.ParseNodeType(typ)
			if err != nil {
				return err
			}
			return withDB(func(db *emergent.DB) error {
				c := cycle
				if c < 0 {
					c = db.NextNodeCycle()
				}
				id, err := db.AppendNode(graph.Source(source), nodeType, content, tags, c)
				if err != nil {
					return err
				}
				fmt.Printf("%s (cycle %d)\n", id, c)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Contributor source (required)")
	cmd.Flags().StringVar(&typ, "type", "", "Node type (required)")
	cmd.Flags().StringVar(&content, "content", "", "Node content (required)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Comma-separated tags")
	cmd.Flags().IntVar(&cycle, "cycle", -1, "Cycle ordinal (default: next)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("content")
	return cmd
}

func newAddEdgeCmd() *cobra.Command {
	var (
		from     string
		to       string
		relation string
		cycle    int
	)
	cmd := &cobra.Command{
		Use:   "add-edge",
		Short: "Append an edge between two existing nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := graph.ParseRelation(relation)
			if err != nil {
				return err
			}
			return withDB(func(db *emergent.DB) error {
				c := cycle
				if c < 0 {
					c = db.NextEdgeCycle()
				}
				id, err := db.AppendEdge(graph.NodeID(from), graph.NodeID(to), rel, c)
				if err != nil {
					return err
				}
				fmt.Printf("%s (cycle %d)\n", id, c)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source node id (required)")
	cmd.Flags().StringVar(&to, "to", "", "Target node id (required)")
	cmd.Flags().StringVar(&relation, "relation", string(graph.RelationRelatesTo), "Edge relation")
	cmd.Flags().IntVar(&cycle, "cycle", -1, "Cycle ordinal (default: next)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "node <id>",
		Short: "Show one node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				node, err := db.Node(graph.NodeID(args[0]))
				if err != nil {
					return err
				}
				printNode(node)
				return nil
			})
		},
	}
}

func newEdgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edge <id>",
		Short: "Show one edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				edge, err := db.Edge(graph.EdgeID(args[0]))
				if err != nil {
					return err
				}
				printEdge(edge)
				return nil
			})
		},
	}
}

func newQueryCmd() *cobra.Command {
	var (
		source string
		typ    string
		tag    string
		search string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List nodes matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				nodes, err := db.Query(graph.Filter{
					Source:   graph.Source(source),
					Type:     graph.NodeType(typ),
					Tag:      tag,
					Contains: search,
				})
				if err != nil {
					return err
				}
				for i := range nodes {
					printNode(&nodes[i])
				}
				fmt.Printf("%d node(s)\n", len(nodes))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Filter by contributor source")
	cmd.Flags().StringVar(&typ, "type", "", "Filter by node type")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive content search")
	return cmd
}

func newShowCmd() *cobra.Command {
	var withEdges bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the whole graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				snap, err := db.Store().Snapshot()
				if err != nil {
					return err
				}
				for i := range snap.Nodes {
					printNode(&snap.Nodes[i])
				}
				if withEdges {
					for i := range snap.Edges {
						printEdge(&snap.Edges[i])
					}
				}
				fmt.Printf("%d node(s), %d edge(s)\n", len(snap.Nodes), len(snap.Edges))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withEdges, "edges", false, "Include edges")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the graph by type, source and relation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				stats, err := db.Stats()
				if err != nil {
					return err
				}
				return printJSON(stats)
			})
		},
	}
}

func newMetricsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute the emergence metric report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				report, err := db.ComputeMetrics()
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(report)
				}
				fmt.Printf("nodes:               %d\n", report.Nodes)
				fmt.Printf("edges:               %d\n", report.Edges)
				fmt.Printf("CSER:                %.4f\n", report.CSER)
				fmt.Printf("DCI:                 %.4f\n", report.DCI)
				fmt.Printf("edge span (norm):    %.4f\n", report.EdgeSpan.Normalized)
				fmt.Printf("node age diversity:  %.4f\n", report.NodeAgeDiversity)
				fmt.Printf("tag convergence:     %.4f\n", report.TagConvergence)
				fmt.Printf("convergence health:  %.4f\n", report.ConvergenceHealth)
				fmt.Printf("E:                   %.4f\n", report.E)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newRecommendCmd() *cobra.Command {
	var (
		top         int
		minSpan     int
		minSemantic float64
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Suggest node pairs to link next",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if minSpan > 0 {
				cfg.Designer.MinSpan = minSpan
			}
			if minSemantic > 0 {
				cfg.Designer.MinSemantic = minSemantic
			}
			db, err := emergent.Open(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := db.Recommend(top)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("no candidate pairs")
				return nil
			}
			for i, r := range recs {
				fmt.Printf("%d. %s -> %s  [%s]  score=%.4f  ΔE=%+.4f\n",
					i+1, r.Score.From, r.Score.To, r.Relation, r.Score.Combined, r.PredictedDelta)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "Number of recommendations")
	cmd.Flags().IntVar(&minSpan, "min-span", 0, "Minimum cycle distance")
	cmd.Flags().Float64Var(&minSemantic, "min-semantic", 0, "Minimum semantic sub-score")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		from     string
		to       string
		relation string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Predict the emergence delta of a hypothetical edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := graph.ParseRelation(relation)
			if err != nil {
				return err
			}
			return withDB(func(db *emergent.DB) error {
				delta, err := db.SimulateDelta(graph.NodeID(from), graph.NodeID(to), rel)
				if err != nil {
					return err
				}
				fmt.Printf("ΔE = %+.4f\n", delta)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source node id (required)")
	cmd.Flags().StringVar(&to, "to", "", "Target node id (required)")
	cmd.Flags().StringVar(&relation, "relation", string(graph.RelationRelatesTo), "Edge relation")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newOutcomeCmd() *cobra.Command {
	var (
		edge      string
		predicted float64
		actual    float64
	)
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Record a realized emergence delta against its prediction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				if err := db.RecordOutcome(graph.EdgeID(edge), predicted, actual); err != nil {
					return err
				}
				c := db.Coefficients()
				fmt.Printf("recorded; coefficients now span=%.3f semantic=%.3f cross=%.3f\n",
					c.Span, c.Semantic, c.CrossSource)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&edge, "edge", "", "Edge id (required)")
	cmd.Flags().Float64Var(&predicted, "predicted", 0, "Predicted delta")
	cmd.Flags().Float64Var(&actual, "actual", 0, "Realized delta")
	cmd.MarkFlagRequired("edge")
	return cmd
}

func newGateCmd() *cobra.Command {
	var (
		macro []string
		tech  []string
		file  string
	)
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Check a macro/tech section pair against the execution gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				sections, err := gate.ParseSections(string(data))
				if err != nil {
					return err
				}
				macro, tech = sections.Macro, sections.Tech
			}
			result := gate.New(cfg.Gate.Threshold).Check(macro, tech)
			fmt.Printf("%s  local_cser=%.4f  threshold=%.2f  cross_pairs=%d\n",
				result.Verdict, result.LocalCSER, result.Threshold, result.CrossPairs)
			if !result.Passed() {
				os.Exit(2)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&macro, "macro", nil, "Macro section tags")
	cmd.Flags().StringSliceVar(&tech, "tech", nil, "Tech section tags")
	cmd.Flags().StringVar(&file, "file", "", "Read labeled sections from file")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the graph as a versioned JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				if err := db.Export(args[0]); err != nil {
					return err
				}
				fmt.Printf("exported to %s\n", args[0])
				return nil
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a versioned JSON document into an empty store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *emergent.DB) error {
				if err := db.Import(args[0]); err != nil {
					return err
				}
				stats, err := db.Stats()
				if err != nil {
					return err
				}
				fmt.Printf("imported %d node(s), %d edge(s)\n", stats.Nodes, stats.Edges)
				return nil
			})
		},
	}
}

func printNode(n *graph.Node) {
	tags := ""
	if len(n.Tags) > 0 {
		tags = "  #" + strings.Join(n.Tags, " #")
	}
	fmt.Printf("%s  [%s/%s] c%d  %s%s\n", n.ID, n.Source, n.Type, n.Cycle, n.Content, tags)
}

func printEdge(e *graph.Edge) {
	fmt.Printf("%s  %s -[%s]-> %s  c%d\n", e.ID, e.From, e.Relation, e.To, e.Cycle)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
