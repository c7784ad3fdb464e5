package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afraponix/batchtrack/internal/batch"
	"github.com/afraponix/batchtrack/internal/core"
	"github.com/afraponix/batchtrack/internal/report"
	"github.com/afraponix/batchtrack/internal/storage"
)

// plantedLayouts are accepted by `add --planted`, most specific first.
var plantedLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

const pageSize = 100

// usageError marks bad input; the process exits with code 2 for these.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// usageArgs reports positional argument problems as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{msg: err.Error()}
		}
		return nil
	}
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

func checkDays(flag string, days int) error {
	if days < 0 || days > batch.MaxDaysToHarvest {
		return usagef("%s must be between 0 and %d", flag, batch.MaxDaysToHarvest)
	}
	return nil
}

func parsePlanted(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range plantedLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, usagef("invalid --planted %q (want YYYY-MM-DD [HH:MM[:SS]])", value)
}

// listAll pages through the store until a short page comes back.
func listAll(st *storage.Store, opts storage.ListOptions) ([]core.Batch, error) {
	opts.Limit = pageSize
	all := make([]core.Batch, 0)
	for offset := 0; ; offset += pageSize {
		opts.Offset = offset
		page, err := st.ListBatches(opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func newAddCmd(a *app) *cobra.Command {
	var (
		variety string
		count   int
		bed     int64
		system  string
		days    int
		planted string
		notes   string
	)

	cmd := &cobra.Command{
		Use:   "add <crop>",
		Short: "Start a new batch",
		Example: `  batchtrack add lettuce --count 30 --bed 3
  batchtrack add "cherry tomatoes" --planted "2024-03-10 14:05:30" --days 70`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			crop := strings.TrimSpace(strings.Join(args, " "))
			if crop == "" {
				return usagef("crop is empty")
			}
			if count < 0 {
				return usagef("--count must be >= 0")
			}

			at := a.lc.Now()
			if cmd.Flags().Changed("planted") {
				var err error
				if at, err = parsePlanted(planted, a.lc.Location()); err != nil {
					return err
				}
			}

			if !cmd.Flags().Changed("days") {
				days = a.cfg.HarvestDaysFor(crop)
			}
			if err := checkDays("--days", days); err != nil {
				return err
			}

			id := a.lc.GenerateID(at)
			b := core.Batch{
				ID:            id.String(),
				SystemID:      system,
				CropType:      crop,
				SeedVariety:   variety,
				PlantCount:    count,
				CreatedDate:   at.In(a.lc.Location()).Format("2006-01-02"),
				DaysToHarvest: days,
			}
			if cmd.Flags().Changed("bed") {
				b.GrowBedID = &bed
			}
			if n := strings.TrimSpace(notes); n != "" {
				b.Notes = &n
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			if err := st.CreateBatch(b); err != nil {
				return err
			}

			a.log.User("add batch", map[string]any{"batch_id": b.ID, "crop": crop, "days_to_harvest": days})
			if days == 0 {
				a.log.Warn("no harvest timeline for crop", zap.String("crop", crop))
			}

			fmt.Fprintf(a.stdout, "Saved as %s\n", b.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&variety, "variety", "", "seed variety")
	f.IntVar(&count, "count", 0, "number of plants")
	f.Int64Var(&bed, "bed", 0, "grow bed id")
	f.StringVar(&system, "system", "", "system id")
	f.IntVar(&days, "days", 0, "days to harvest (default from harvest_days)")
	f.StringVar(&planted, "planted", "", "planting time, YYYY-MM-DD [HH:MM[:SS]] (default now)")
	f.StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func writeRows(w io.Writer, rows []report.Row, output string, styled bool) error {
	switch output {
	case "json":
		return report.WriteJSON(w, rows)
	case "yaml":
		return report.WriteYAML(w, rows)
	default:
		return report.WriteText(w, rows, styled)
	}
}

func checkOutput(output string) error {
	switch output {
	case "text", "json", "yaml":
		return nil
	default:
		return usagef("invalid --output %q (want text, json or yaml)", output)
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		all    bool
		crop   string
		output string
	)

	cmd := &cobra.Command{
		Use:     "status [id]",
		Aliases: []string{"view", "ls"},
		Short:   "Show batches with their growth phase",
		Args:    usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			now := a.lc.Now()

			if len(args) == 1 {
				b, events, err := st.GetBatch(args[0])
				if err != nil {
					return err
				}
				row := report.Build(a.lc, b, now)
				if output == "text" {
					return report.WriteDetail(a.stdout, row, events)
				}
				return writeRows(a.stdout, []report.Row{row}, output, false)
			}

			batches, err := listAll(st, storage.ListOptions{IncludeHarvested: all, CropType: crop})
			if err != nil {
				return err
			}
			return writeRows(a.stdout, report.BuildAll(a.lc, batches, now), output, a.styled)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&all, "all", "a", false, "include harvested batches")
	f.StringVar(&crop, "crop", "", "only batches of this crop")
	f.StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newReadyCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "ready",
		Short: "List active batches whose harvest date has passed",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			batches, err := listAll(st, storage.ListOptions{})
			if err != nil {
				return err
			}

			rows := make([]report.Row, 0)
			for _, r := range report.BuildAll(a.lc, batches, a.lc.Now()) {
				if r.Ready {
					rows = append(rows, r)
				}
			}

			if output != "text" {
				return writeRows(a.stdout, rows, output, a.styled)
			}
			if len(rows) == 0 {
				fmt.Fprintln(a.stdout, "No batches ready for harvest.")
				return nil
			}
			if err := writeRows(a.stdout, rows, output, a.styled); err != nil {
				return err
			}
			active, err := st.CountActive()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d of %d active batches ready for harvest.\n", len(rows), active)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newHarvestCmd(a *app) *cobra.Command {
	var (
		weight float64
		count  int
		force  bool
		note   string
	)

	cmd := &cobra.Command{
		Use:   "harvest <id>",
		Short: "Record the harvest of a batch",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			st, err := a.openStore()
			if err != nil {
				return err
			}

			b, _, err := st.GetBatch(id)
			if err != nil {
				return err
			}
			if b.Harvested() {
				return fmt.Errorf("%s: %w", id, storage.ErrAlreadyHarvested)
			}

			now := a.lc.Now()
			if !a.lc.IsReadyForHarvestAt(b.ID, b.DaysToHarvest, now) {
				expected := "no harvest timeline"
				if t, ok := a.lc.ExpectedHarvestDate(b.ID, b.DaysToHarvest); ok {
					expected = "expected " + t.Format("2006-01-02")
				}
				if !force {
					return usagef("%s is not ready for harvest (%s); use --force to harvest anyway", id, expected)
				}
				a.log.Warn("harvesting before expected date", zap.String("batch_id", id), zap.String("expected", expected))
			}

			h := storage.Harvest{At: now}
			if cmd.Flags().Changed("weight") {
				h.Weight = &weight
			}
			if cmd.Flags().Changed("count") {
				h.PlantsHarvested = &count
			}
			if n := strings.TrimSpace(note); n != "" {
				h.Note = &n
			}
			if err := st.MarkHarvested(id, h); err != nil {
				return err
			}

			a.log.User("harvest batch", map[string]any{"batch_id": id, "forced": force})
			fmt.Fprintf(a.stdout, "Harvested %s\n", a.lc.DisplayLabelAt(id, now))
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&weight, "weight", 0, "harvest weight in grams")
	f.IntVar(&count, "count", 0, "number of plants harvested")
	f.BoolVar(&force, "force", false, "harvest even if the batch is not ready")
	f.StringVar(&note, "note", "", "note stored with the harvested event")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <id> <days>",
		Short: "Set a batch's days to harvest",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			days, err := strconv.Atoi(args[1])
			if err != nil {
				return usagef("invalid days %q", args[1])
			}
			if err := checkDays("days", days); err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			if err := st.UpdateDaysToHarvest(id, days); err != nil {
				return err
			}

			a.log.User("schedule batch", map[string]any{"batch_id": id, "days_to_harvest": days})
			if expected, ok := a.lc.ExpectedHarvestDate(id, days); ok {
				fmt.Fprintf(a.stdout, "%s: harvest by %s\n", id, expected.Format("2006-01-02"))
			} else {
				fmt.Fprintf(a.stdout, "%s: no harvest timeline\n", id)
			}
			return nil
		},
	}
}

func newNoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> [text]",
		Short: "Add a note to a batch's history",
		Long:  "Add a note to a batch's history. Without text, the configured editor is opened.",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			text := strings.TrimSpace(strings.Join(args[1:], " "))

			st, err := a.openStore()
			if err != nil {
				return err
			}
			b, _, err := st.GetBatch(id)
			if err != nil {
				return err
			}

			if text == "" {
				edited, err := a.editNote(b)
				if err != nil {
					return fmt.Errorf("edit: %w", err)
				}
				text = edited
			}

			if err := st.AppendEvent(id, core.EventNote, &text); err != nil {
				return err
			}
			a.log.User("note batch", map[string]any{"batch_id": id})
			fmt.Fprintf(a.stdout, "Noted on %s\n", id)
			return nil
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a batch and its history",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			st, err := a.openStore()
			if err != nil {
				return err
			}

			if !yes {
				if _, _, err := st.GetBatch(id); err != nil {
					return err
				}
				ok, err := promptYesNo(a, fmt.Sprintf("Delete %s and its history?", id))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			if err := st.DeleteBatch(id); err != nil {
				return err
			}
			a.log.User("remove batch", map[string]any{"batch_id": id})
			fmt.Fprintf(a.stdout, "Removed %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// promptYesNo asks a yes/no question on the app's input.
func promptYesNo(a *app, question string) (bool, error) {
	reader := bufio.NewReader(a.stdin)
	for {
		fmt.Fprintf(a.stdout, "%s [y/n]: ", question)
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return false, fmt.Errorf("read: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(a.stderr, "Please answer yes or no.")
		}
	}
}
