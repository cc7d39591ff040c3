package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freshledger/internal/config"
	"freshledger/internal/domain"
	"freshledger/internal/driver"
	"freshledger/internal/engine"
	"freshledger/internal/ledger"
	"freshledger/internal/scenario"
	"freshledger/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Freshledger CLI",
	Long: `Freshledger simulates a food supply chain ledger with two business rules.
Core concepts:
- Ledger: an append-only log of supply-chain events with strictly increasing ids.
- Conditions rule: temperature and humidity of TRANSPORT/WAREHOUSE_RECEIPT/RETAIL_RECEIPT
  events are checked against thresholds; breaches flag the event in the ledger.
- Pricing rule: PAYMENT_REQUEST events consult the ledger for prior flagged
  violations of the same product, deduct spoilage, and decide whether payment
  is released.
- Scenario: an ordered YAML list of events fed through both rules in sequence.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FRESHLEDGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config-dir", "c", ".", "directory holding freshledger.yml")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("config-dir", rootCmd.PersistentFlags().Lookup("config-dir"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func runCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario through the ledger and both rule evaluators",
		Long:  "Feeds each event of the scenario into the ledger in order, evaluates conditions and payments, and prints the run report. Without --file the built-in sample shipment is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, eng engine.Engine) error {
				s := scenario.Sample()
				if file != "" {
					var err error
					s, err = scenario.FromFile(file)
					if err != nil {
						return err
					}
				}
				for i := range s.Events {
					if s.Events[i].ActorID == "" {
						s.Events[i].ActorID = viper.GetString("actor-id")
					}
				}
				report, err := driver.Run(ctx, eng, s)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				printReport(report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "scenario YAML file (defaults to the built-in sample)")
	return cmd
}

func scenarioCmd() *cobra.Command {
	sc := &cobra.Command{
		Use:   "scenario",
		Short: "Work with scenario files",
	}
	sc.AddCommand(scenarioSampleCmd())
	return sc
}

func scenarioSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print the built-in sample scenario as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := scenario.Sample().ToYAML()
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage freshledger.yml",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("config-dir"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default freshledger.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("config-dir"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server over an in-memory ledger",
		Long:  "The ledger lives for the lifetime of the process; restarting the server starts an empty ledger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("config-dir"))
			if err != nil {
				return err
			}
			eng := engine.New(ledger.New(), cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("FRESHLEDGER_JWT_SECRET"),
				AllowLegacyActorHeader: allowActorHeader,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("FRESHLEDGER_JWT_SECRET is required for bearer auth (or pass --allow-actor-header)")
			}
			handler, err := server.New(server.Config{Engine: eng, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Freshledger API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept unauthenticated X-Actor-Id header (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := config.LoadOptional(viper.GetString("config-dir"))
	if err != nil {
		return err
	}
	l := ledger.New()
	return fn(ctx, engine.New(l, cfg))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(r driver.Report) {
	fmt.Printf("Run %s (%s)\n", r.RunID, r.Scenario)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Type", "Product", "Location", "Result", "Detail"})
	for _, o := range r.Outcomes {
		result, detail := outcomeSummary(o)
		tw.AppendRow(table.Row{o.Event.ID, o.Event.Type, o.Event.ProductID, o.Event.Location, result, detail})
	}
	tw.Render()
	fmt.Printf("Violations: %d  Released total: %.2f\n", r.ViolationCount, r.ReleasedTotal)
}

func outcomeSummary(o driver.Outcome) (string, string) {
	switch {
	case o.Condition != nil:
		return o.Condition.Status, strings.Join(o.Condition.Violations, "; ")
	case o.Payment != nil:
		detail := fmt.Sprintf("amount=%.2f", o.Payment.Amount)
		if o.Payment.SpoilageKg > 0 {
			detail += fmt.Sprintf(" spoilage=%.1fkg", o.Payment.SpoilageKg)
		}
		return o.Payment.Status, detail
	default:
		return "recorded", noteOf(o.Event)
	}
}

func noteOf(e domain.Event) string {
	return e.Details.Note
}
