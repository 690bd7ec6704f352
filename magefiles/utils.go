//go:build mage

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// glfw and the Vulkan loader are cgo packages.
var goEnv = map[string]string{"CGO_ENABLED": "1"}

// goCmd runs the go tool. Output is streamed when mage runs verbose or the
// caller asks for it, and is otherwise printed only when the command fails.
func goCmd(stream bool, args ...string) error {
	fmt.Printf("Executing: go %s\n", strings.Join(args, " "))
	if stream || mg.Verbose() {
		return sh.RunWithV(goEnv, "go", args...)
	}
	out, err := sh.OutputWith(goEnv, "go", args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "... failed command output:")
		fmt.Fprintln(os.Stderr, out)
		return fmt.Errorf("error executing go %s: %w", args[0], err)
	}
	return nil
}
