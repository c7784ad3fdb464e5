package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/afraponix/batchtrack/internal/core"
)

var waitingEditors = []string{"code", "code-insiders", "codium", "vscodium", "subl", "sublime"}

func buildEditorCommand(editor string, path string) (*exec.Cmd, error) {
	argv := strings.Fields(strings.TrimSpace(editor))
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty editor")
	}

	editorBin, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, err
	}

	args := argv[1:]
	if slices.Contains(waitingEditors, filepath.Base(editorBin)) && !slices.Contains(args, "--wait") && !slices.Contains(args, "-w") {
		args = append(args, "--wait")
	}

	args = append(args, path)
	return exec.Command(editorBin, args...), nil
}

// terminalEditors are the fallbacks when neither $VISUAL nor $EDITOR is usable.
var terminalEditors = []string{"nano", "vim", "vi"}

// pickableEditors are offered by `config --editor` when installed.
var pickableEditors = slices.Concat(waitingEditors, terminalEditors, []string{"nvim", "micro", "emacs"})

// editorCandidates returns $VISUAL, $EDITOR and then fallbacks, trimmed and
// without blanks or repeats.
func editorCandidates(getenv func(string) string, fallbacks []string) []string {
	all := append([]string{getenv("VISUAL"), getenv("EDITOR")}, fallbacks...)
	out := make([]string, 0, len(all))
	for _, c := range all {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// installedEditors drops candidates whose program is not on PATH.
func installedEditors(candidates []string) []string {
	return slices.DeleteFunc(candidates, func(c string) bool {
		_, err := exec.LookPath(strings.Fields(c)[0])
		return err != nil
	})
}

// noteTemplate is the initial editor content for a batch note.
func noteTemplate(label string, b core.Batch) string {
	var sb strings.Builder
	sb.WriteString("// Note for " + label + "\n")
	sb.WriteString("// Crop: " + b.CropType + "\n")
	sb.WriteString("// Lines starting with // are ignored. Save and close to record the note.\n\n")
	return sb.String()
}

// parseNote strips template lines and surrounding blank space from edited text.
func parseNote(text string) (string, error) {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimRight(ln, "\r")
		if strings.HasPrefix(strings.TrimSpace(ln), "//") {
			continue
		}
		kept = append(kept, ln)
	}

	note := strings.TrimSpace(strings.Join(kept, "\n"))
	if note == "" {
		return "", fmt.Errorf("note is empty")
	}
	return note, nil
}

// editorCommand picks the configured editor, then $VISUAL, $EDITOR and the
// common terminal fallbacks.
func (a *app) editorCommand(path string) (*exec.Cmd, error) {
	if configured := strings.TrimSpace(a.cfg.Editor); configured != "" {
		cmd, err := buildEditorCommand(configured, path)
		if err != nil {
			return nil, fmt.Errorf("configured editor not found: %w", err)
		}
		return cmd, nil
	}

	for _, e := range editorCandidates(os.Getenv, terminalEditors) {
		if cmd, err := buildEditorCommand(e, path); err == nil {
			return cmd, nil
		}
	}
	return nil, fmt.Errorf("no editor found in $VISUAL/$EDITOR and no fallback (nano/vim/vi) is available")
}

// editNote opens a temp file in the user's editor and returns the note written there.
func (a *app) editNote(b core.Batch) (string, error) {
	file, err := os.CreateTemp("", "batchtrack-note-*.txt")
	if err != nil {
		return "", err
	}
	path := file.Name()
	defer os.Remove(path)

	if _, err := file.WriteString(noteTemplate(a.lc.DisplayLabel(b.ID), b)); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	cmd, err := a.editorCommand(path)
	if err != nil {
		return "", err
	}
	a.log.Debug("opening editor", zap.String("editor", cmd.Path))

	cmd.Stdin = a.stdin
	cmd.Stdout = a.stdout
	cmd.Stderr = a.stderr
	if err := cmd.Run(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return parseNote(string(data))
}
