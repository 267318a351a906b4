// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspaces resolves and validates the directories sessions
// run in. A workspace is just a directory; no registration is needed.
package workspaces

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
)

// Resolver canonicalizes workspace paths against a configured root.
type Resolver struct {
	root string
}

// NewResolver creates a resolver. root must be an absolute path; it is
// used to resolve relative workspace paths.
func NewResolver(root string) (*Resolver, error) {
	if !filepath.IsAbs(root) {
		return nil, errors.NewInvalidArgumentError(
			fmt.Sprintf("workspace root must be absolute, got %q", root), nil)
	}
	return &Resolver{root: root}, nil
}

// Root returns the configured workspace root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve canonicalizes a workspace path: relative paths resolve under
// the root, symlinks are followed, and the result must be an existing
// directory. An empty path means the root itself.
func (r *Resolver) Resolve(path string) (string, error) {
	if path == "" {
		path = r.root
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}
	path = filepath.Clean(path)

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError(
				fmt.Sprintf("workspace %q does not exist", path), err)
		}
		return "", errors.NewInvalidArgumentError(
			fmt.Sprintf("resolving workspace %q", path), err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", errors.NewNotFoundError(
			fmt.Sprintf("workspace %q does not exist", resolved), err)
	}
	if !info.IsDir() {
		return "", errors.NewInvalidArgumentError(
			fmt.Sprintf("workspace %q is not a directory", resolved), nil)
	}
	return resolved, nil
}
