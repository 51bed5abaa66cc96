package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matsen/research-assistant/internal/arxiv"
	"github.com/matsen/research-assistant/internal/session"
)

var (
	fetchKeywords []string
	fetchMax      int
	fetchSort     string
	fetchMetrics  bool
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringSliceVarP(&fetchKeywords, "keyword", "k", nil, "Search keyword (repeatable)")
	fetchCmd.Flags().IntVarP(&fetchMax, "max", "n", DefaultMaxPapers, "Maximum papers to fetch across all keywords")
	fetchCmd.Flags().StringVar(&fetchSort, "sort", "relevance", "Sort order: relevance or submitted")
	fetchCmd.Flags().BoolVar(&fetchMetrics, "metrics", false, "Include cache metrics in the output")
	fetchCmd.MarkFlagRequired("keyword")
}

// FetchResponse is the response for the fetch command.
type FetchResponse struct {
	Collection string             `json:"collection"`
	Keywords   []string           `json:"keywords"`
	Stats      session.BuildStats `json:"stats"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <collection>",
	Short: "Fetch arXiv abstracts into a collection",
	Long: `Search arXiv once per keyword and add the abstracts to a collection.

Abstracts already in the collection are not embedded again, so a fetch
can be repeated or extended with new keywords cheaply.

Example:
  ra fetch "JWST discoveries" -k "james webb" -k "high redshift galaxies" --max 200`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	sortBy, err := arxiv.ParseSortBy(fetchSort)
	if err != nil {
		return err
	}
	if fetchMax <= 0 {
		return fmt.Errorf("--max must be positive, got %d", fetchMax)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := checkOllama(ctx, cfg); err != nil {
		return err
	}

	var reg *prometheus.Registry
	if fetchMetrics {
		reg = prometheus.NewRegistry()
	}
	s, err := openSession(ctx, cfg, args[0], registerer(reg))
	if err != nil {
		return err
	}
	defer s.Close()

	progress := func(p session.Progress) {
		if humanOutput {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s: %d fetched, %d new\n",
				p.Step, p.Steps, p.Keyword, p.Stats.Fetched, p.Stats.New)
		}
	}
	client := arxiv.NewClient(arxiv.WithLogger(logger))
	stats, err := s.Build(ctx, client, fetchKeywords, fetchMax, sortBy, progress)
	if err != nil {
		return err
	}

	resp := FetchResponse{Collection: s.Namespace(), Keywords: fetchKeywords, Stats: stats}
	if reg != nil {
		if resp.Metrics, err = gatherMetrics(reg); err != nil {
			return err
		}
	}

	if humanOutput {
		outputHuman("Collection: %s\n\n", s.DisplayName())
		printStatsHuman(stats)
		if len(resp.Metrics) > 0 {
			outputHuman("\nMetrics:\n")
			names := make([]string, 0, len(resp.Metrics))
			for name := range resp.Metrics {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				outputHuman("  %s %g\n", name, resp.Metrics[name])
			}
		}
		return nil
	}
	return outputJSON(resp)
}

// registerer avoids handing a typed nil *Registry to code that checks for nil.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

// gatherMetrics flattens gathered counters and histogram sample counts into
// name -> value, summing across label values.
func gatherMetrics(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()+"_count"] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
