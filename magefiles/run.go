//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed in a window on the Vulkan backend.
func (Run) Testbed() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run testbed...")
	return goCmd(true, "run", ".")
}

// Runs the testbed headless on the null backend with live stats.
func (Run) Headless() error {
	mg.Deps(Build.Shaders)
	return goCmd(true, "run", ".", "-backend", "null", "-headless", "-tui")
}
