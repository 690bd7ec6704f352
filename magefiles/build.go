//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/anima-gal/engine/assets"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every shader manifest under assets/shaders to catch errors early.
func (Build) Shaders() error {
	manifests, err := filepath.Glob(filepath.Join(shaderDir, "*"+assets.ManifestExtension))
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return fmt.Errorf("no shader manifests in %s", shaderDir)
	}
	for _, m := range manifests {
		desc, _, err := assets.CompileManifest(m)
		if err != nil {
			return err
		}
		fmt.Printf("compiled %s (%d bindings)\n", desc.Name, len(desc.Reflection.Bindings))
	}
	return nil
}

// Builds the testbed binary into bin/.
func (Build) Testbed() error {
	mg.Deps(Build.Shaders)
	return goCmd(false, "build", "-o", "bin/testbed", ".")
}
