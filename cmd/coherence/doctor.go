package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/coherence/pkg/cache"
	"github.com/Mindburn-Labs/coherence/pkg/config"
)

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

func newDoctorCmd(cfg *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			results := runChecks(ctx, cfg)
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				printChecks(cmd.OutOrStdout(), results)
			}
			for _, r := range results {
				if r.Status == "fail" {
					return exitError(1)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output checks as JSON")
	return cmd
}

func runChecks(ctx context.Context, cfg *config.Config) []checkResult {
	results := []checkResult{{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}}

	db, _, dialect, err := openStore(ctx, cfg)
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "database", Status: "fail", Detail: err.Error()})
	default:
		detail := dialect.String()
		if cfg.LiteMode() {
			detail += " " + cfg.SQLitePath
		}
		if err := db.PingContext(ctx); err != nil {
			results = append(results, checkResult{Name: "database", Status: "fail", Detail: err.Error()})
		} else {
			results = append(results, checkResult{Name: "database", Status: "ok", Detail: detail})
		}
		_ = db.Close()
	}

	if cfg.RedisAddr == "" {
		results = append(results, checkResult{Name: "redis", Status: "warn", Detail: "REDIS_ADDR not set (in-process cache)"})
	} else {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err := rc.Ping(ctx); err != nil {
			results = append(results, checkResult{Name: "redis", Status: "fail", Detail: err.Error()})
		} else {
			results = append(results, checkResult{Name: "redis", Status: "ok", Detail: cfg.RedisAddr})
		}
		_ = rc.Close()
	}

	if cfg.WeightProfilesPath == "" {
		results = append(results, checkResult{Name: "weight_profiles", Status: "ok", Detail: "built-in default profile"})
	} else if registry, err := loadRegistry(cfg, ""); err != nil {
		results = append(results, checkResult{Name: "weight_profiles", Status: "fail", Detail: err.Error()})
	} else {
		results = append(results, checkResult{
			Name:   "weight_profiles",
			Status: "ok",
			Detail: fmt.Sprintf("%d profiles from %s", len(registry.List()), cfg.WeightProfilesPath),
		})
	}

	if _, err := reviewPolicy(cfg.ReviewPolicy); err != nil {
		results = append(results, checkResult{Name: "review_policy", Status: "fail", Detail: err.Error()})
	} else if cfg.ReviewPolicy == "" {
		results = append(results, checkResult{Name: "review_policy", Status: "ok", Detail: "built-in"})
	} else {
		results = append(results, checkResult{Name: "review_policy", Status: "ok", Detail: cfg.ReviewPolicy})
	}

	otel := checkResult{Name: "telemetry", Status: "ok", Detail: "disabled"}
	if cfg.OTelEnabled {
		otel.Detail = "otlp " + cfg.OTelEndpoint
	}
	return append(results, otel)
}

func printChecks(w io.Writer, results []checkResult) {
	_, _ = fmt.Fprintln(w, "Coherence Doctor")
	_, _ = fmt.Fprintln(w, "────────────────")
	for _, r := range results {
		icon := "ok  "
		switch r.Status {
		case "warn":
			icon = "warn"
		case "fail":
			icon = "FAIL"
		}
		_, _ = fmt.Fprintf(w, "  %s  %-16s %s\n", icon, r.Name, r.Detail)
	}
}
