// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"errors"
	"fmt"
	"os"

	"github.com/telekom/mailtask/pkg/render"
	"github.com/telekom/mailtask/pkg/task"
)

// CommandKey is the parameter holding the path of the operator's main file
// (for example the body template of a mail task).
const CommandKey = "_command"

// ErrNoCommand is returned when neither _command nor the alias key names a file.
var ErrNoCommand = errors.New("no template file configured")

// Workspace is the file tree a task runs in. All paths are relative to its
// root and may not escape it, including through symlinks.
type Workspace struct {
	dir  string
	root *os.Root
}

// Open opens the workspace rooted at dir.
func Open(dir string) (*Workspace, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace %s: %w", dir, err)
	}
	return &Workspace{dir: dir, root: root}, nil
}

// Dir returns the workspace root directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// ReadFile returns the contents of path inside the workspace.
func (w *Workspace) ReadFile(path string) ([]byte, error) {
	return w.root.ReadFile(path)
}

// TemplateCommand loads the template file named by the _command parameter,
// or by aliasKey when _command is unset, and renders it with params.
func (w *Workspace) TemplateCommand(engine render.Engine, format render.Format, params task.Params, aliasKey string) (string, error) {
	path, ok, err := params.String(CommandKey)
	if err != nil {
		return "", err
	}
	if !ok {
		path, ok, err = params.String(aliasKey)
		if err != nil {
			return "", err
		}
	}
	if !ok || path == "" {
		return "", fmt.Errorf("%w: set '%s' to a file in the workspace", ErrNoCommand, aliasKey)
	}

	source, err := w.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return engine.Render(format, path, string(source), params)
}

// Close releases the workspace root handle.
func (w *Workspace) Close() error {
	return w.root.Close()
}
