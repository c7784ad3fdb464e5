// Package report renders batches together with their derived lifecycle status.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/afraponix/batchtrack/internal/batch"
	"github.com/afraponix/batchtrack/internal/core"
)

// Row is one batch with its status as of a point in time.
type Row struct {
	Batch           core.Batch   `json:"batch" yaml:"batch"`
	Status          batch.Status `json:"status" yaml:"status"`
	Label           string       `json:"label" yaml:"label"`
	Ready           bool         `json:"readyForHarvest" yaml:"readyForHarvest"`
	Planted         *time.Time   `json:"planted,omitempty" yaml:"planted,omitempty"`
	ExpectedHarvest *time.Time   `json:"expectedHarvest,omitempty" yaml:"expectedHarvest,omitempty"`
	AsOf            time.Time    `json:"asOf" yaml:"asOf"`
}

// Build derives the row for b as of now.
func Build(lc *batch.Lifecycle, b core.Batch, now time.Time) Row {
	row := Row{
		Batch:  b,
		Status: lc.StatusAt(b.ID, b.DaysToHarvest, now),
		Label:  lc.DisplayLabelAt(b.ID, now),
		Ready:  lc.IsReadyForHarvestAt(b.ID, b.DaysToHarvest, now),
		AsOf:   now,
	}
	if planted, ok := lc.ParseID(b.ID); ok {
		row.Planted = &planted
	}
	if expected, ok := lc.ExpectedHarvestDate(b.ID, b.DaysToHarvest); ok {
		row.ExpectedHarvest = &expected
	}
	return row
}

// BuildAll derives rows for every batch as of now.
func BuildAll(lc *batch.Lifecycle, batches []core.Batch, now time.Time) []Row {
	rows := make([]Row, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, Build(lc, b, now))
	}
	return rows
}

var phaseStyles = map[batch.Phase]lipgloss.Style{
	batch.PhaseSeedling:   lipgloss.NewStyle().Foreground(lipgloss.Color("#A3E635")),
	batch.PhaseVegetative: lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")),
	batch.PhaseMature:     lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	batch.PhaseHarvest:    lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
	batch.PhaseUnknown:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
}

var headerStyle = lipgloss.NewStyle().Bold(true)

// The phase column is padded before styling so ANSI codes do not skew widths.
const (
	lineFormat = "%-22s %-16s %-4s %-5s %s %-5s %-5s %s\n"
	phaseWidth = 11
)

// WriteText writes an aligned table. styled colours the header and phase column.
func WriteText(w io.Writer, rows []Row, styled bool) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No batches yet.")
		return err
	}

	header := strings.TrimSuffix(fmt.Sprintf(lineFormat, "BATCH", "CROP", "BED", "AGE", pad("PHASE", phaseWidth), "PROG", "LEFT", "HARVEST BY"), "\n")
	if styled {
		header = headerStyle.Render(header)
	}
	if _, err := io.WriteString(w, header+"\n"); err != nil {
		return err
	}

	for _, r := range rows {
		phase := pad(string(r.Status.Phase), phaseWidth)
		if styled {
			if style, ok := phaseStyles[r.Status.Phase]; ok {
				phase = style.Render(phase)
			}
		}

		harvestBy := "-"
		if r.Batch.Harvested() {
			harvestBy = "harvested " + r.Batch.HarvestedAt.Format("2006-01-02")
		} else if r.ExpectedHarvest != nil {
			harvestBy = r.ExpectedHarvest.Format("2006-01-02")
			if r.Ready {
				harvestBy += " (ready)"
			}
		}

		_, err := fmt.Fprintf(w, lineFormat,
			r.Batch.ID,
			truncate(r.Batch.CropType, 16),
			optionalInt64(r.Batch.GrowBedID),
			optionalInt(r.Status.Age),
			phase,
			strconv.Itoa(r.Status.Progress)+"%",
			optionalInt(r.Status.DaysRemaining),
			harvestBy,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteDetail writes a single batch with its event history.
func WriteDetail(w io.Writer, r Row, events []core.Event) error {
	b := r.Batch
	lines := []string{
		r.Label,
		"Crop:        " + b.CropType,
	}
	if b.SeedVariety != "" {
		lines = append(lines, "Variety:     "+b.SeedVariety)
	}
	if b.SystemID != "" {
		lines = append(lines, "System:      "+b.SystemID)
	}
	if b.GrowBedID != nil {
		lines = append(lines, "Grow bed:    "+strconv.FormatInt(*b.GrowBedID, 10))
	}
	if r.Planted != nil {
		lines = append(lines, fmt.Sprintf("Planted:     %s (%s)",
			r.Planted.Format("2006-01-02 15:04"), humanize.RelTime(*r.Planted, r.AsOf, "ago", "from now")))
	}
	lines = append(lines,
		"Plants:      "+humanize.Comma(int64(b.PlantCount)),
		fmt.Sprintf("Phase:       %s (%s)", r.Status.Phase, r.Status.Description),
		fmt.Sprintf("Progress:    %d%%", r.Status.Progress),
	)
	if r.ExpectedHarvest != nil {
		lines = append(lines, "Harvest by:  "+r.ExpectedHarvest.Format("2006-01-02 15:04"))
	}
	if b.Harvested() {
		line := "Harvested:   " + b.HarvestedAt.Format("2006-01-02 15:04")
		if b.HarvestWeight != nil {
			line += fmt.Sprintf(", %.2f g", *b.HarvestWeight)
		}
		if b.PlantsHarvested != nil {
			line += fmt.Sprintf(", %d plants", *b.PlantsHarvested)
		}
		lines = append(lines, line)
	}
	if b.Notes != nil && *b.Notes != "" {
		lines = append(lines, "Notes:       "+*b.Notes)
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if len(events) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\nHistory:"); err != nil {
		return err
	}
	for _, e := range events {
		line := fmt.Sprintf("  %s  %s", e.At.Format("2006-01-02 15:04"), e.Kind)
		if e.Note != nil {
			line += "  " + *e.Note
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteYAML writes rows as a YAML sequence.
func WriteYAML(w io.Writer, rows []Row) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return nil
}

func optionalInt(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func optionalInt64(p *int64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatInt(*p, 10)
}

func pad(s string, width int) string {
	return fmt.Sprintf("%-*s", width, s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
