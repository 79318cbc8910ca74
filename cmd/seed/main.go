// Command seed loads demo tasks into the configured task store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"priority-agent-backend/internal/config"
	"priority-agent-backend/internal/db"
	"priority-agent-backend/internal/tasks"
)

var demoTasks = []tasks.CreateRequest{
	{
		Title:       "Study advanced React",
		Description: "Custom hooks, context API and performance optimization",
		Deadline:    3,
		Duration:    4,
		Importance:  0.9,
		Stress:      0.5,
		Fun:         0.8,
		PenaltyLate: 0.9,
	},
	{
		Title:       "Write unit tests",
		Description: "Cover the UI with Jest and React Testing Library",
		Deadline:    5,
		Duration:    3,
		Importance:  0.7,
		Stress:      0.6,
		Fun:         0.4,
		PenaltyLate: 0.6,
	},
	{
		Title:       "Review API framework docs",
		Description: "Middleware, dependency injection and async patterns",
		Deadline:    7,
		Duration:    2,
		Importance:  0.6,
		Stress:      0.3,
		Fun:         0.7,
		PenaltyLate: 0.4,
	},
	{
		Title:       "Algorithm exercises",
		Description: "Data structures and complexity problems",
		Deadline:    2,
		Duration:    2,
		Importance:  0.8,
		Stress:      0.7,
		Fun:         0.5,
		PenaltyLate: 0.8,
	},
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo tasks into the task store",
		Long: `Seed validates a list of tasks and creates them in the store selected by
DB_DRIVER (postgres or sqlite3). Without --file the built-in demo set is used.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reqs := demoTasks
			if file != "" {
				var err error
				if reqs, err = loadRequests(file); err != nil {
					return err
				}
			}

			drafts, err := validate(reqs)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d tasks are valid\n", len(drafts))
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DBDriver == "memory" {
				return fmt.Errorf("DB_DRIVER=memory has nothing to seed; use postgres or sqlite3")
			}

			ctx := cmd.Context()
			database, err := db.Connect(ctx, db.Dialect(cfg.DBDriver), cfg.ConnString())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer database.Close()
			if err := database.Migrate(ctx); err != nil {
				return err
			}

			return seed(ctx, tasks.NewSQLStore(database), drafts, cmd)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a list of tasks")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only, write nothing")
	return cmd
}

// taskFile mirrors the POST /tasks body.
type taskFile struct {
	Tasks []struct {
		Title       string  `yaml:"title"`
		Description string  `yaml:"description"`
		Deadline    int     `yaml:"deadline"`
		Duration    float64 `yaml:"duration"`
		Importance  float64 `yaml:"importance"`
		Stress      float64 `yaml:"stress"`
		Fun         float64 `yaml:"fun"`
		PenaltyLate float64 `yaml:"penalty_late"`
		Status      string  `yaml:"status"`
	} `yaml:"tasks"`
}

func loadRequests(path string) ([]tasks.CreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f taskFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	reqs := make([]tasks.CreateRequest, 0, len(f.Tasks))
	for _, t := range f.Tasks {
		reqs = append(reqs, tasks.CreateRequest{
			Title:       t.Title,
			Description: t.Description,
			Deadline:    t.Deadline,
			Duration:    t.Duration,
			Importance:  t.Importance,
			Stress:      t.Stress,
			Fun:         t.Fun,
			PenaltyLate: t.PenaltyLate,
			Status:      t.Status,
		})
	}
	return reqs, nil
}

func validate(reqs []tasks.CreateRequest) ([]tasks.Draft, error) {
	v := tasks.NewValidator()
	drafts := make([]tasks.Draft, 0, len(reqs))
	for i, req := range reqs {
		d, err := v.Draft(req)
		if err != nil {
			return nil, fmt.Errorf("task #%d (%q): %w", i+1, req.Title, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func seed(ctx context.Context, store tasks.Store, drafts []tasks.Draft, cmd *cobra.Command) error {
	for _, d := range drafts {
		t, err := store.Create(ctx, d)
		if err != nil {
			return fmt.Errorf("create %q: %w", d.Title, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created #%d %s\n", t.ID, t.Title)
	}

	all, err := store.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d tasks in store\n", len(all))
	return nil
}
