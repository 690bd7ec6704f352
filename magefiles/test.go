//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) Unit() error {
	return goCmd(true, "test", "./...")
}

// Runs the tests with the race detector.
func (Test) Race() error {
	return goCmd(true, "test", "-race", "./...")
}

// Runs go vet over every package.
func (Test) Vet() error {
	return goCmd(false, "vet", "./...")
}
