package main

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/afraponix/batchtrack/internal/batch"
	"github.com/afraponix/batchtrack/internal/config"
)

// pickEditor is the value `--editor` takes when given without an argument.
const pickEditor = "\x00pick"

var configFlags = []string{"timezone", "environment", "database", "log-level", "date-layout", "harvest-days", "editor"}

func (a *app) resolvedConfigPath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.ConfigPath()
}

// printConfig renders the current configuration.
func printConfig(a *app, cfg config.Config) {
	if path, err := a.resolvedConfigPath(); err == nil {
		fmt.Fprintf(a.stdout, "Config file: %s\n\n", path)
	}

	fmt.Fprintln(a.stdout, "Current configuration")
	fmt.Fprintf(a.stdout, "Environment: %s\n", cfg.Environment)
	if cfg.LogLevel != "" {
		fmt.Fprintf(a.stdout, "Log level:   %s\n", cfg.LogLevel)
	}
	fmt.Fprintf(a.stdout, "Database:    %s\n", cfg.Database)
	tz := cfg.Timezone
	if tz == "" {
		tz = "(local)"
	}
	fmt.Fprintf(a.stdout, "Timezone:    %s\n", tz)
	fmt.Fprintf(a.stdout, "Date layout: %s\n", cfg.DateLayout)
	if cfg.Editor == "" {
		fmt.Fprintln(a.stdout, "Editor:      (unset)")
	} else {
		fmt.Fprintf(a.stdout, "Editor:      %s\n", cfg.Editor)
	}

	fmt.Fprintln(a.stdout, "Harvest days:")
	for _, crop := range cfg.Crops() {
		fmt.Fprintf(a.stdout, "  %-16s %d\n", crop, cfg.HarvestDays[crop])
	}
}

// configureEditor lists editors found on PATH and saves the selected one.
func configureEditor(a *app, cfg config.Config) (config.Config, error) {
	editors := installedEditors(editorCandidates(os.Getenv, pickableEditors))
	if len(editors) == 0 {
		return cfg, fmt.Errorf("no editors found on PATH")
	}

	fmt.Fprintln(a.stdout, "Available editors:")
	for idx, editor := range editors {
		fmt.Fprintf(a.stdout, "[%d] %s\n", idx, editor)
	}

	fmt.Fprint(a.stdout, "Select editor by index: ")
	reader := bufio.NewReader(a.stdin)
	line, err := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil {
			return cfg, fmt.Errorf("read: %w", err)
		}
		return cfg, usagef("no selection provided")
	}
	idx, err := strconv.Atoi(line)
	if err != nil || idx < 0 || idx >= len(editors) {
		return cfg, usagef("invalid editor index")
	}

	cfg.Editor = editors[idx]
	return cfg, nil
}

func newConfigCmd(a *app) *cobra.Command {
	var (
		timezone    string
		environment string
		database    string
		logLevel    string
		dateLayout  string
		editor      string
		harvestDays map[string]int
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit defaults",
		Example: `  batchtrack config
  batchtrack config --timezone Europe/Berlin --harvest-days lettuce=30,microgreens=12
  batchtrack config --editor`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			f := cmd.Flags()
			if !slices.ContainsFunc(configFlags, f.Changed) {
				printConfig(a, cfg)
				return nil
			}

			// The --db override must not leak into the saved file.
			cfg.Database = a.fileDatabase

			if f.Changed("timezone") {
				cfg.Timezone = strings.TrimSpace(timezone)
			}
			if f.Changed("environment") {
				cfg.Environment = strings.ToLower(strings.TrimSpace(environment))
			}
			if f.Changed("database") {
				cfg.Database = strings.TrimSpace(database)
			}
			if f.Changed("log-level") {
				cfg.LogLevel = strings.TrimSpace(logLevel)
			}
			if f.Changed("date-layout") {
				cfg.DateLayout = dateLayout
			}
			if f.Changed("harvest-days") {
				crops := make([]string, 0, len(harvestDays))
				for crop := range harvestDays {
					crops = append(crops, crop)
				}
				sort.Strings(crops)
				merged := make(map[string]int, len(cfg.HarvestDays)+len(harvestDays))
				for crop, days := range cfg.HarvestDays {
					merged[crop] = days
				}
				for _, crop := range crops {
					days := harvestDays[crop]
					if days <= 0 || days > batch.MaxDaysToHarvest {
						return usagef("harvest days for %q must be between 1 and %d", crop, batch.MaxDaysToHarvest)
					}
					merged[strings.ToLower(strings.Join(strings.Fields(crop), "_"))] = days
				}
				cfg.HarvestDays = merged
			}
			if f.Changed("editor") {
				if editor == pickEditor {
					var err error
					if cfg, err = configureEditor(a, cfg); err != nil {
						return err
					}
				} else {
					cfg.Editor = strings.TrimSpace(editor)
				}
			}

			path, err := a.resolvedConfigPath()
			if err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			a.log.User("save config", map[string]any{"path": path})

			printConfig(a, cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&timezone, "timezone", "", "IANA timezone used for batch identifiers (empty for local)")
	f.StringVar(&environment, "environment", "", "development or production")
	f.StringVar(&database, "database", "", "database file path")
	f.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	f.StringVar(&dateLayout, "date-layout", "", "Go time layout used in batch labels")
	f.StringToIntVar(&harvestDays, "harvest-days", nil, "default days to harvest per crop, crop=N[,crop=N]")
	f.StringVar(&editor, "editor", "", "editor command for notes (no value to choose from PATH)")
	f.Lookup("editor").NoOptDefVal = pickEditor
	return cmd
}
