package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/coherence/pkg/antigaming"
	"github.com/Mindburn-Labs/coherence/pkg/coherence"
	"github.com/Mindburn-Labs/coherence/pkg/config"
	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/reconcile"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

func newCalculateCmd(cfg *config.Config) *cobra.Command {
	var (
		input       string
		profile     string
		useCache    bool
		persist     bool
		autoResolve bool
	)
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate the coherence score of a project",
		Long: `Reads a project input document (project_id, violations, document_count,
events) as JSON and prints the calculation result. With --reconcile the
generated alerts are also persisted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in coherence.ProjectInput
			if err := readJSON(cmd, input, &in); err != nil {
				return err
			}
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				calc := coherence.CalculateCommand{Input: in, UseCache: useCache}
				if profile != "" {
					p, err := a.svc.Registry().Get(profile)
					if err != nil {
						return err
					}
					calc.Weights = &p
				}
				res, err := a.svc.CalculateCoherence(ctx, calc)
				if err != nil {
					return err
				}
				if !persist {
					return writeJSON(cmd, res)
				}
				_, stats, err := a.svc.ReconcileCalculation(ctx, res, autoResolve)
				if err != nil {
					return err
				}
				return writeJSON(cmd, struct {
					Result *contracts.CalculationResult `json:"result"`
					Stats  reconcile.Stats              `json:"reconcile"`
				}{res, stats})
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "project input JSON file, - for stdin")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "weight profile name (default: resolved by project type)")
	cmd.Flags().BoolVar(&useCache, "cache", false, "return and store cached results")
	cmd.Flags().BoolVar(&persist, "reconcile", false, "persist generated alerts")
	cmd.Flags().BoolVar(&autoResolve, "auto-resolve", true, "resolve persisted alerts that were not detected again")
	return cmd
}

// detectInput is the JSON form of an anti-gaming detection request.
type detectInput struct {
	Events        []antigaming.Event `json:"events"`
	Score         *float64           `json:"score,omitempty"`
	DocumentCount *int               `json:"document_count,omitempty"`
	Now           *time.Time         `json:"now,omitempty"`
}

func newDetectCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run the anti-gaming detector on an event history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in detectInput
			if err := readJSON(cmd, input, &in); err != nil {
				return err
			}
			now := time.Now()
			if in.Now != nil {
				now = *in.Now
			}
			res := antigaming.NewDetector().Detect(antigaming.Input{
				Events:        in.Events,
				Score:         in.Score,
				DocumentCount: in.DocumentCount,
				Now:           now,
			})
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "detection input JSON file, - for stdin")
	return cmd
}

func newReconcileCmd(cfg *config.Config) *cobra.Command {
	var (
		input       string
		project     string
		analysisID  string
		autoResolve bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile rule results with a project's persisted alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var results []contracts.RuleResult
			if err := readJSON(cmd, input, &results); err != nil {
				return err
			}
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				records, stats, err := a.svc.ReconcileAlerts(ctx, project, results, analysisID, autoResolve)
				if err != nil {
					return err
				}
				return writeJSON(cmd, struct {
					Alerts []*contracts.AlertRecord `json:"alerts"`
					Stats  reconcile.Stats          `json:"stats"`
				}{records, stats})
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "rule results JSON file, - for stdin")
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&analysisID, "analysis-id", "", "analysis run id stamped on new alerts")
	cmd.Flags().BoolVar(&autoResolve, "auto-resolve", true, "resolve alerts that were not detected again")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newRecalculateCmd(cfg *config.Config) *cobra.Command {
	var (
		project     string
		projectType string
		action      string
		alertIDs    []string
		profile     string
	)
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Rescore a project after alerts were resolved or dismissed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			act, err := coherence.ParseAction(action)
			if err != nil {
				return err
			}
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				req := coherence.RecalculateRequest{
					ProjectID:   project,
					ProjectType: projectType,
					AlertIDs:    alertIDs,
					Action:      act,
				}
				if profile != "" {
					p, err := a.svc.Registry().Get(profile)
					if err != nil {
						return err
					}
					req.Weights = &p
				}
				res, err := a.svc.RecalculateOnAlert(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&projectType, "project-type", "", "project type used to resolve the weight profile")
	cmd.Flags().StringVar(&action, "action", string(coherence.ActionResolved), "RESOLVED, DISMISSED or ACKNOWLEDGED")
	cmd.Flags().StringSliceVar(&alertIDs, "alert-id", nil, "alert ids the action applies to (repeatable)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "weight profile name")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newProfilesCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect weight profiles",
	}

	var file string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the registered weight profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(cfg, file)
			if err != nil {
				return err
			}
			return writeJSON(cmd, registry.List())
		},
	}
	list.Flags().StringVarP(&file, "file", "f", "", "profile document (default: WEIGHT_PROFILES_PATH)")

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a weight profile document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadProfileDocument(args[0])
			if err != nil {
				return err
			}
			applied, err := config.ApplyProfiles(weights.NewRegistry(), doc)
			if err != nil {
				return err
			}
			cmd.Printf("%s: version %s OK\n", args[0], doc.Version)
			for _, p := range applied {
				cmd.Printf("  %-20s revision %d\n", p.Name, p.Revision)
			}
			return nil
		},
	}

	cmd.AddCommand(list, validate)
	return cmd
}

// withApp opens the configured adapters for the duration of fn.
func withApp(cmd *cobra.Command, cfg *config.Config, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	return fn(ctx, a)
}

func readJSON(cmd *cobra.Command, path string, v any) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
