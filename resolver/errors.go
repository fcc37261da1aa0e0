// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resolver

import "fmt"

// RootNotFoundError is fatal: the root path given to Resolve does not
// exist or cannot be opened.
type RootNotFoundError struct {
	Path string
}

func (e *RootNotFoundError) Error() string {
	return fmt.Sprintf("resolver: root not found: %s", e.Path)
}

// RootNotPeError is fatal: the root path exists but is not a parseable PE
// image.
type RootNotPeError struct {
	Path string
	Why  string
}

func (e *RootNotPeError) Error() string {
	return fmt.Sprintf("resolver: root is not a PE file: %s (%s)", e.Path, e.Why)
}

// ArchitectureMismatchError is fatal: a dependency's declared architecture
// does not match the root's, which a real Windows loader could never
// satisfy.
type ArchitectureMismatchError struct {
	RootArch string
	NodePath string
	NodeArch string
}

func (e *ArchitectureMismatchError) Error() string {
	return fmt.Sprintf("resolver: architecture mismatch: root is %s, %s is %s",
		e.RootArch, e.NodePath, e.NodeArch)
}
