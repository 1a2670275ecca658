package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/activity"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/catalog"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/config"
	appI18n "github.com/Monsieur-Zinj/mathalea-reco/internal/i18n"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/prompt"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/synthesis"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mathalea-reco",
		Short: "Process mathALÉA activity exports and maintain the cross-activity synthesis",
	}

	process := processCmd()
	root.AddCommand(process, synthesizeCmd(), updateCatalogCmd())

	// Make "process" the default when no subcommand is given.
	root.RunE = process.RunE
	root.Args = process.Args
	root.Flags().AddFlagSet(process.Flags())

	return root
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [activity]",
		Short: "Build and export an activity's score table (all activities when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProcess,
	}
	f := cmd.Flags()
	addCommonFlags(cmd)
	f.StringSlice("tag", nil, "Activity tag as key=value (repeatable)")
	f.Bool("prompt-tags", false, "Collect tags interactively")
	return cmd
}

func synthesizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthesize <activity>",
		Short: "Merge an exported activity into the synthesis store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSynthesize,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("force", false, "Replace the activity's previous contribution if already synthesized")
	return cmd
}

func updateCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-catalog",
		Short: "Refresh the cached exercise and theme catalogs",
		Args:  cobra.NoArgs,
		RunE:  runUpdateCatalog,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("exercises-url", catalog.DefaultExercisesURL, "Exercise catalog URL")
	f.String("themes-url", catalog.DefaultThemesURL, "Theme catalog URL")
	f.Duration("timeout", 30*time.Second, "Catalog fetch timeout")
	return cmd
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("data-dir", "data", "Data root directory")
	f.StringP("lang", "l", "fr", "Message language (fr, en)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MATHALEA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mathalea-reco")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mathalea-reco")
	v.AddConfigPath("/etc/mathalea-reco")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	}

	return v
}

func initMessages(cmd *cobra.Command, v *viper.Viper) (context.Context, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return appI18n.WithLang(ctx, lang), nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := config.FromViper(v)

	ctx, err := initMessages(cmd, v)
	if err != nil {
		return err
	}

	tags := map[string]string{}
	for _, kv := range v.GetStringSlice("tag") {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return fmt.Errorf("invalid --tag %q: want key=value", kv)
		}
		tags[key] = value
	}
	if v.GetBool("prompt-tags") {
		p := prompt.New(os.Stdin, os.Stdout)
		for key, value := range p.Tags(ctx) {
			tags[key] = value
		}
	}

	res, closeRes := openCatalog(cfg)
	defer closeRes()

	if len(args) == 1 {
		return processOne(ctx, cfg, args[0], tags, res)
	}

	// Batch mode: every subfolder of the activities root is an activity.
	// A failed activity is reported and its siblings continue.
	entries, err := os.ReadDir(cfg.ActivitiesRoot())
	if err != nil {
		return fmt.Errorf("%w: activities root %s", activity.ErrMissingInput, cfg.ActivitiesRoot())
	}
	processed, failed := 0, 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := processOne(ctx, cfg, e.Name(), tags, res); err != nil {
			slog.Error("activity failed", "activity", e.Name(), "error", err)
			fmt.Println(appI18n.Td(ctx, "ActivityFailed", map[string]any{
				"Activity": e.Name(),
				"Error":    err.Error(),
			}))
			failed++
			continue
		}
		processed++
	}
	fmt.Println(appI18n.Td(ctx, "BatchSummary", map[string]any{"OK": processed, "Failed": failed}))
	if processed == 0 && failed > 0 {
		return fmt.Errorf("all %d activities failed", failed)
	}
	return nil
}

func processOne(ctx context.Context, cfg config.Config, name string, tags map[string]string, res activity.Resolver) error {
	fmt.Println(appI18n.Td(ctx, "ProcessingActivity", map[string]any{"Activity": name}))
	out, err := activity.Run(cfg, name, tags, res)
	if err != nil {
		return err
	}
	slog.Info("activity exported", "activity", name, "csv", out.CSVPath, "json", out.JSONPath)
	fmt.Println(appI18n.Td(ctx, "ActivitySaved", map[string]any{
		"Activity": name,
		"CSV":      out.CSVPath,
		"JSON":     out.JSONPath,
	}))
	return nil
}

// openCatalog returns a metadata resolver backed by the catalog cache, or a
// nil resolver when no cache has been built yet.
func openCatalog(cfg config.Config) (activity.Resolver, func()) {
	if _, err := os.Stat(cfg.CatalogDBPath()); err != nil {
		return nil, func() {}
	}
	cat, err := catalog.Open(cfg.CatalogDBPath())
	if err != nil {
		slog.Warn("open catalog cache", "error", err)
		return nil, func() {}
	}
	return cat, func() { cat.Close() }
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := config.FromViper(v)

	ctx, err := initMessages(cmd, v)
	if err != nil {
		return err
	}

	name := args[0]
	if _, err := os.Stat(cfg.ActivityDir(name)); err != nil {
		return fmt.Errorf("%w: activity folder %s", activity.ErrMissingInput, cfg.ActivityDir(name))
	}
	if _, err := os.Stat(cfg.SourceDataDir(name)); err != nil {
		return fmt.Errorf("%w: source data folder %s", activity.ErrMissingInput, cfg.SourceDataDir(name))
	}

	resultPath := filepath.Join(cfg.FinalDataDir(name), cfg.ResultJSONFilename)
	data, err := os.ReadFile(resultPath)
	if err != nil {
		return fmt.Errorf("%w: activity result %s (run process first)", activity.ErrMissingInput, resultPath)
	}
	var result model.ActivityResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decode %s: %w", resultPath, err)
	}

	store, err := synthesis.Load(cfg.SynthesisJSONPath())
	if err != nil {
		return err
	}
	if err := store.Merge(&result, name, v.GetBool("force")); err != nil {
		return err
	}
	if err := store.Save(cfg.SynthesisJSONPath(), cfg.SynthesisCSVPath()); err != nil {
		return err
	}

	slog.Info("synthesis updated",
		"activity", name,
		"exercises", store.Metadata.Statistics.TotalExercises,
		"students", store.Metadata.Statistics.TotalStudents,
		"total_n", store.Metadata.TotalN,
	)
	fmt.Println(appI18n.Td(ctx, "SynthesisUpdated", map[string]any{"Activity": name}))
	return nil
}

func runUpdateCatalog(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := config.FromViper(v)

	ctx, err := initMessages(cmd, v)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.CatalogDir(), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	store, err := catalog.Open(cfg.CatalogDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	client := catalog.NewClient(
		v.GetString("exercises-url"),
		v.GetString("themes-url"),
		v.GetDuration("timeout"),
	)

	// Remote failures are logged and the stale cache stays in place; the
	// pipeline keeps working with whatever catalog data it has.
	exerciseCount, themeCount := 0, 0
	exercises, err := client.FetchExercises(ctx)
	if err != nil {
		slog.Error("fetch exercise catalog", "error", err)
	} else if err := store.PutExercises(exercises); err != nil {
		return err
	} else {
		exerciseCount = len(exercises)
	}

	themes, err := client.FetchThemes(ctx)
	if err != nil {
		slog.Error("fetch theme catalog", "error", err)
	} else if err := store.PutThemes(themes); err != nil {
		return err
	} else {
		themeCount = len(themes)
	}

	if exerciseCount == 0 && themeCount == 0 {
		return nil
	}

	fmt.Println(appI18n.Td(ctx, "CatalogUpdated", map[string]any{
		"Exercises": exerciseCount,
		"Themes":    themeCount,
	}))
	if err := store.ExportInteractiveCSV(cfg.CatalogCSVPath()); err != nil {
		return err
	}
	fmt.Println(appI18n.Td(ctx, "CatalogCSVWritten", map[string]any{"Path": cfg.CatalogCSVPath()}))
	return nil
}
