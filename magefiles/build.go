//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// buildShaders compiles every *.vert.glsl/*.frag.glsl pair under
// shaders/ to SPIR-V via glslc, the way consumers of this library
// produce the bytecode a shader's .toml sidecar (engine/gpu/shader.go)
// points at. Generalized from the teacher's fixed Builtin.*Shader file
// list to a directory walk, since this module ships no shaders of its
// own -- it loads whatever a caller compiled.
func buildShaders() error {
	fmt.Println("Build shaders...")
	vkSDKPath := os.Getenv("VULKAN_SDK")
	glslc := fmt.Sprintf("%s/bin/glslc", vkSDKPath)

	for _, stage := range []string{"vert", "frag"} {
		matches, err := filepath.Glob(fmt.Sprintf("shaders/*.%s.glsl", stage))
		if err != nil {
			return err
		}
		for _, src := range matches {
			out := strings.TrimSuffix(src, ".glsl") + ".spv"
			if _, err := executeCmd(glslc, withArgs(fmt.Sprintf("-fshader-stage=%s", stage), src, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Shaders compiles every shader under shaders/ to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Vet runs go vet across every package.
func (Build) Vet() error {
	fmt.Println("go vet ./...")
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// Tidy runs go mod tidy.
func (Build) Tidy() error {
	fmt.Println("go mod tidy")
	_, err := executeCmd("go", withArgs("mod", "tidy"), withStream())
	return err
}
