package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afraponix/batchtrack/internal/batch"
	"github.com/afraponix/batchtrack/internal/config"
	"github.com/afraponix/batchtrack/internal/logging"
	"github.com/afraponix/batchtrack/internal/storage"
)

// Version is the current CLI version string.
const Version = "v0.3"

// app carries what every command needs. It is built in PersistentPreRunE
// and torn down in PersistentPostRun.
type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	now    func() time.Time

	configPath string
	dbPath     string
	styled     bool

	// fileDatabase is the database path as loaded, before --db.
	fileDatabase string

	cfg   config.Config
	log   *logging.Logger
	lc    *batch.Lifecycle
	store *storage.Store
	close func()
}

func newApp(stdout, stderr io.Writer, stdin io.Reader) *app {
	return &app{stdout: stdout, stderr: stderr, stdin: stdin, now: time.Now}
}

// setup loads configuration and builds the logger and lifecycle.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.fileDatabase = cfg.Database
	if a.dbPath != "" {
		cfg.Database = a.dbPath
	}
	a.cfg = cfg

	log, err := logging.New(logging.Options{
		Development: cfg.Development(),
		Level:       cfg.LogLevel,
		Output:      a.stderr,
	})
	if err != nil {
		return err
	}
	a.log = log.With(zap.String("run_id", uuid.NewString()))

	a.lc = batch.New(
		batch.WithLocation(cfg.Location()),
		batch.WithClock(a.now),
		batch.WithDateLayout(cfg.DateLayout),
	)
	return nil
}

// openStore opens the SQLite-backed store on first use.
func (a *app) openStore() (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	sqlDB, err := storage.Open(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	st, err := storage.New(sqlDB, a.log.Named("storage"), storage.WithClock(a.lc.Now))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new store: %w", err)
	}

	a.store = st
	a.close = func() {
		_ = sqlDB.Close()
	}
	a.log.Debug("opened database", zap.String("path", a.cfg.Database))
	return st, nil
}

func (a *app) teardown() {
	if a.close != nil {
		a.close()
		a.close = nil
		a.store = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "batchtrack",
		Short: "Track plant batches from seeding to harvest",
		Long: `batchtrack keeps a record of plant batches in aquaponic and hydroponic
grow beds. Every batch is keyed by an identifier derived from the moment it
was planted (BATCH_YYYYMMDD_HHMMSS); its age, growth phase and harvest
readiness are computed from that identifier and the crop's days to harvest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usagef("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{msg: err.Error()}
	})
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetIn(a.stdin)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/batchtrack/config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database file (overrides the configured path)")
	root.PersistentFlags().BoolVar(&a.styled, "color", false, "colour the status table")

	root.AddCommand(
		newAddCmd(a),
		newStatusCmd(a),
		newReadyCmd(a),
		newHarvestCmd(a),
		newScheduleCmd(a),
		newNoteCmd(a),
		newRemoveCmd(a),
		newIDCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  usageArgs(cobra.NoArgs),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.stdout, "batchtrack %s\n", Version)
			return err
		},
	}
}

// execute runs the CLI and returns the process exit code.
func execute(a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	cmd, err := root.ExecuteC()
	if err != nil {
		name := "batchtrack"
		if cmd != nil && cmd != root {
			name = cmd.Name()
		}
		fmt.Fprintf(a.stderr, "%s: %v\n", name, err)
		a.teardown()
		return exitCode(err)
	}
	return 0
}

func main() {
	os.Exit(execute(newApp(os.Stdout, os.Stderr, os.Stdin), os.Args[1:]))
}
