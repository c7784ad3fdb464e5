package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	configPath string
	dbPath     string
	now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		dbPath:     filepath.Join(dir, "batches.db"),
		now:        time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC),
	}
	content := "environment: production\ntimezone: UTC\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr, strings.NewReader(stdin))
	a.now = func() time.Time { return e.now }

	full := append([]string{"--config", e.configPath, "--db", e.dbPath}, args...)
	code := execute(a, full)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	res := e.run(t, "", args...)
	require.Equal(t, 0, res.code, "stderr: %s", res.stderr)
	return res.stdout
}

type statusJSON struct {
	Batch struct {
		ID              string   `json:"batchId"`
		CropType        string   `json:"cropType"`
		PlantCount      int      `json:"plantCount"`
		DaysToHarvest   int      `json:"daysToHarvest"`
		GrowBedID       *int64   `json:"growBedId"`
		HarvestWeight   *float64 `json:"harvestWeight"`
		PlantsHarvested *int     `json:"plantsHarvested"`
	} `json:"batch"`
	Status struct {
		Phase    string `json:"phase"`
		Progress int    `json:"progress"`
		Age      *int   `json:"age"`
	} `json:"status"`
	Label string `json:"label"`
	Ready bool   `json:"readyForHarvest"`
}

func decodeStatus(t *testing.T, out string) []statusJSON {
	t.Helper()
	var rows []statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	return rows
}

func TestAddAndStatus(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", "30", "--count", "30", "--bed", "3")
	assert.Equal(t, "Saved as BATCH_20240310_140530\n", out)

	rows := decodeStatus(t, env.mustRun(t, "status", "-o", "json"))
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "BATCH_20240310_140530", r.Batch.ID)
	assert.Equal(t, 30, r.Batch.PlantCount)
	require.NotNil(t, r.Batch.GrowBedID)
	assert.Equal(t, int64(3), *r.Batch.GrowBedID)
	assert.Equal(t, "vegetative", r.Status.Phase)
	assert.Equal(t, 30, r.Status.Progress)
	require.NotNil(t, r.Status.Age)
	assert.Equal(t, 9, *r.Status.Age)
	assert.Equal(t, "BATCH_20240310_140530 (3/10/2024, 9 days old)", r.Label)
	assert.False(t, r.Ready)

	text := env.mustRun(t, "status")
	assert.Contains(t, text, "BATCH_20240310_140530")
	assert.Contains(t, text, "vegetative")

	yamlOut := env.mustRun(t, "status", "-o", "yaml")
	assert.Contains(t, yamlOut, "batchId: BATCH_20240310_140530")
}

func TestAddUsesConfiguredHarvestDays(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "add", "basil", "--planted", "2024-02-01 08:00")
	env.mustRun(t, "add", "microgreens", "--planted", "2024-03-15")

	rows := decodeStatus(t, env.mustRun(t, "status", "--output", "json"))
	require.Len(t, rows, 2)
	assert.Equal(t, "BATCH_20240201_080000", rows[0].Batch.ID)
	assert.Equal(t, 45, rows[0].Batch.DaysToHarvest)
	assert.Equal(t, "BATCH_20240315_000000", rows[1].Batch.ID)
	assert.Equal(t, 0, rows[1].Batch.DaysToHarvest)
	assert.Equal(t, "unknown", rows[1].Status.Phase)
}

func TestAddDefaultsToNow(t *testing.T) {
	env := newTestEnv(t)
	env.now = time.Date(2024, 3, 19, 6, 7, 8, 0, time.UTC)

	out := env.mustRun(t, "add", "kale")

	assert.Equal(t, "Saved as BATCH_20240319_060708\n", out)
}

func TestAddRejectsDuplicateAndBadInput(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30")

	dup := env.run(t, "", "add", "spinach", "--planted", "2024-03-10 14:05:30")
	assert.Equal(t, 1, dup.code)
	assert.Contains(t, dup.stderr, "add: ")
	assert.Contains(t, dup.stderr, "already exists")

	bad := env.run(t, "", "add", "lettuce", "--planted", "yesterday")
	assert.Equal(t, 2, bad.code)
	assert.Contains(t, bad.stderr, "invalid --planted")

	noCrop := env.run(t, "", "add")
	assert.Equal(t, 2, noCrop.code)
	assert.Contains(t, noCrop.stderr, "requires at least 1 arg(s)")

	badCount := env.run(t, "", "add", "lettuce", "--count", "many")
	assert.Equal(t, 2, badCount.code)
	assert.Contains(t, badCount.stderr, "--count")

	unknownFlag := env.run(t, "", "add", "lettuce", "--colour", "green")
	assert.Equal(t, 2, unknownFlag.code)
	assert.Contains(t, unknownFlag.stderr, "unknown flag")

	missingValue := env.run(t, "", "add", "lettuce", "--days")
	assert.Equal(t, 2, missingValue.code)
}

func TestAddRejectsHugeTimeline(t *testing.T) {
	env := newTestEnv(t)

	for _, days := range []string{"3651", "99999999", "9223372036854775807"} {
		res := env.run(t, "", "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", days)
		assert.Equal(t, 2, res.code, days)
		assert.Contains(t, res.stderr, "--days must be between 0 and 3650", days)
	}

	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", "3650")
	rows := decodeStatus(t, env.mustRun(t, "status", "-o", "json"))
	require.Len(t, rows, 1)
	assert.Equal(t, "seedling", rows[0].Status.Phase)
	assert.False(t, rows[0].Ready)
}

func TestStatusInvalidOutput(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "status", "-o", "xml")

	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "status: invalid --output")
}

func TestStatusMissingBatch(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "status", "BATCH_20240101_000000")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "batch not found")
}

func TestReadyAndHarvest(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", "30")
	env.mustRun(t, "add", "basil", "--planted", "2024-02-01 08:00:00", "--count", "12")

	ready := env.mustRun(t, "ready")
	assert.Contains(t, ready, "BATCH_20240201_080000")
	assert.NotContains(t, ready, "BATCH_20240310_140530")
	assert.True(t, strings.HasSuffix(ready, "1 of 2 active batches ready for harvest.\n"), ready)

	notReady := env.run(t, "", "harvest", "BATCH_20240310_140530")
	assert.Equal(t, 2, notReady.code)
	assert.Contains(t, notReady.stderr, "not ready for harvest (expected 2024-04-09)")

	out := env.mustRun(t, "harvest", "BATCH_20240201_080000", "--weight", "480.5", "--count", "11", "--note", "good leaves")
	assert.Equal(t, "Harvested BATCH_20240201_080000 (2/1/2024, 47 days old)\n", out)

	again := env.run(t, "", "harvest", "BATCH_20240201_080000")
	assert.Equal(t, 1, again.code)
	assert.Contains(t, again.stderr, "already harvested")

	active := decodeStatus(t, env.mustRun(t, "status", "-o", "json"))
	require.Len(t, active, 1)
	assert.Equal(t, "BATCH_20240310_140530", active[0].Batch.ID)

	all := decodeStatus(t, env.mustRun(t, "status", "--all", "-o", "json"))
	require.Len(t, all, 2)
	require.NotNil(t, all[0].Batch.HarvestWeight)
	assert.InDelta(t, 480.5, *all[0].Batch.HarvestWeight, 0.001)
	require.NotNil(t, all[0].Batch.PlantsHarvested)
	assert.Equal(t, 11, *all[0].Batch.PlantsHarvested)

	detail := env.mustRun(t, "status", "BATCH_20240201_080000")
	assert.Contains(t, detail, "harvested  good leaves")

	assert.Equal(t, "No batches ready for harvest.\n", env.mustRun(t, "ready"))
}

func TestHarvestForce(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", "30")

	res := env.run(t, "", "harvest", "BATCH_20240310_140530", "--force")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Harvested BATCH_20240310_140530")
	assert.Contains(t, res.stderr, "harvesting before expected date")
}

func TestSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", "30")

	out := env.mustRun(t, "schedule", "BATCH_20240310_140530", "10")
	assert.Equal(t, "BATCH_20240310_140530: harvest by 2024-03-20\n", out)

	rows := decodeStatus(t, env.mustRun(t, "status", "-o", "json"))
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].Batch.DaysToHarvest)
	assert.Equal(t, "mature", rows[0].Status.Phase)

	detail := env.mustRun(t, "status", "BATCH_20240310_140530")
	assert.Contains(t, detail, "rescheduled  days to harvest set to 10")

	bad := env.run(t, "", "schedule", "BATCH_20240310_140530", "soon")
	assert.Equal(t, 2, bad.code)

	missing := env.run(t, "", "schedule", "BATCH_20240101_000000", "5")
	assert.Equal(t, 1, missing.code)

	for _, days := range []string{"-1", "3651", "9223372036854775807"} {
		huge := env.run(t, "", "schedule", "BATCH_20240310_140530", days)
		assert.Equal(t, 2, huge.code, days)
	}
	rows = decodeStatus(t, env.mustRun(t, "status", "-o", "json"))
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].Batch.DaysToHarvest)

	extra := env.run(t, "", "schedule", "BATCH_20240310_140530", "10", "20")
	assert.Equal(t, 2, extra.code)
	assert.Contains(t, extra.stderr, "accepts 2 arg(s)")
}

func TestNote(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", "30")

	out := env.mustRun(t, "note", "BATCH_20240310_140530", "tip", "burn", "on", "bed", "3")
	assert.Equal(t, "Noted on BATCH_20240310_140530\n", out)

	detail := env.mustRun(t, "status", "BATCH_20240310_140530")
	assert.Contains(t, detail, "note  tip burn on bed 3")

	missing := env.run(t, "", "note", "BATCH_20240101_000000", "hello")
	assert.Equal(t, 1, missing.code)
}

func TestNoteOpensEditor(t *testing.T) {
	env := newTestEnv(t)
	script := writeEditorScript(t, "echo \"editing $1\"\nprintf 'from editor\\n' >> \"$1\"\n")
	content := "environment: production\ntimezone: UTC\neditor: " + script + "\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30", "--days", "30")

	out := env.mustRun(t, "note", "BATCH_20240310_140530")

	assert.Contains(t, out, "editing ")
	assert.Contains(t, out, "Noted on BATCH_20240310_140530\n")
	detail := env.mustRun(t, "status", "BATCH_20240310_140530")
	assert.Contains(t, detail, "note  from editor")
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "add", "lettuce", "--planted", "2024-03-10 14:05:30")
	env.mustRun(t, "add", "basil", "--planted", "2024-03-11 09:00:00")

	declined := env.run(t, "n\n", "remove", "BATCH_20240310_140530")
	require.Equal(t, 0, declined.code, declined.stderr)
	assert.Contains(t, declined.stdout, "Delete BATCH_20240310_140530 and its history? [y/n]: ")

	confirmed := env.run(t, "yes\n", "rm", "BATCH_20240310_140530")
	require.Equal(t, 0, confirmed.code, confirmed.stderr)
	assert.Contains(t, confirmed.stdout, "Removed BATCH_20240310_140530")

	env.mustRun(t, "remove", "--yes", "BATCH_20240311_090000")

	assert.Equal(t, "No batches yet.\n", env.mustRun(t, "status", "--all"))

	missing := env.run(t, "", "remove", "-y", "BATCH_20240310_140530")
	assert.Equal(t, 1, missing.code)
}

func TestIDCommands(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, "BATCH_20240319_000000\n", env.mustRun(t, "id", "new"))
	assert.Equal(t, "BATCH_20240310_140530\n", env.mustRun(t, "id", "new", "--at", "2024-03-10 14:05:30"))

	out := env.mustRun(t, "id", "parse", "BATCH_20240310_140530", "--days", "30")
	assert.Contains(t, out, "Created: 2024-03-10 14:05:30 UTC")
	assert.Contains(t, out, "Age:     9 days")
	assert.Contains(t, out, "Harvest: 2024-04-09 14:05:30")
	assert.Contains(t, out, "Phase:   vegetative, 30% (Growing - Vegetative stage)")
	assert.Contains(t, out, "Ready:   false")

	bad := env.run(t, "", "id", "parse", "BATCH_2024031_140530")
	assert.Equal(t, 2, bad.code)
	assert.Contains(t, bad.stderr, "parse: ")
}

func TestConfigShowAndSave(t *testing.T) {
	env := newTestEnv(t)

	show := env.mustRun(t, "config")
	assert.Contains(t, show, "Config file: "+env.configPath)
	assert.Contains(t, show, "Environment: production")
	assert.Contains(t, show, "Database:    "+env.dbPath)
	assert.Contains(t, show, "lettuce")

	env.mustRun(t, "config", "--harvest-days", "microgreens=12,Lettuce=28", "--date-layout", "2006-01-02")

	data, err := os.ReadFile(env.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "microgreens: 12")
	assert.NotContains(t, string(data), env.dbPath, "--db override is not persisted")

	env.mustRun(t, "add", "microgreens", "--planted", "2024-03-15 10:00:00")
	rows := decodeStatus(t, env.mustRun(t, "status", "-o", "json"))
	require.Len(t, rows, 1)
	assert.Equal(t, 12, rows[0].Batch.DaysToHarvest)
	assert.Equal(t, "BATCH_20240315_100000 (2024-03-15, 4 days old)", rows[0].Label)

	bad := env.run(t, "", "config", "--timezone", "Mars/Olympus")
	assert.Equal(t, 1, bad.code)
	assert.Contains(t, bad.stderr, "timezone")

	for _, days := range []string{"kale=0", "kale=3651"} {
		res := env.run(t, "", "config", "--harvest-days", days)
		assert.Equal(t, 2, res.code, days)
		assert.Contains(t, res.stderr, "must be between 1 and 3650", days)
	}
}

func TestConfigSaveKeepsFileDatabase(t *testing.T) {
	env := newTestEnv(t)
	farmDB := filepath.Join(t.TempDir(), "farm.db")
	content := "environment: production\ntimezone: UTC\ndatabase: " + farmDB + "\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))

	out := env.mustRun(t, "config", "--log-level", "warn")

	assert.Contains(t, out, "Database:    "+farmDB)
	data, err := os.ReadFile(env.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), farmDB)
	assert.NotContains(t, string(data), env.dbPath)
}

func TestInvalidConfigFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("environment: staging\n"), 0o644))

	res := env.run(t, "", "status")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "environment")
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, "batchtrack "+Version+"\n", env.mustRun(t, "version"))
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "plant")

	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unknown command "plant" for "batchtrack"`)

	flag := env.run(t, "", "--verbose")
	assert.Equal(t, 2, flag.code)
	assert.Contains(t, flag.stderr, "unknown flag: --verbose")
}
