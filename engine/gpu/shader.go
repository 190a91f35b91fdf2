package gpu

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	vk "github.com/goki/vulkan"
)

// DescriptorBinding is one reflected descriptor-set binding, parsed
// from a shader's .toml sidecar (spec §4.7's vertex/fragment
// reflection fields).
type DescriptorBinding struct {
	Binding         uint32 `toml:"binding"`
	DescriptorType  string `toml:"type"`
	DescriptorCount uint32 `toml:"count"`
	Stage           string `toml:"stage"`
}

// VertexAttribute is one reflected vertex (binding 0) or instance
// (binding 1) attribute.
type VertexAttribute struct {
	Location uint32 `toml:"location"`
	Format   string `toml:"format"`
	Offset   uint32 `toml:"offset"`
}

// shaderToml is the on-disk shape of a shader's sidecar config, in the
// teacher's tmpShaderConfig style (engine/assets/loaders/shader.go),
// generalized to carry reflection data instead of a fixed attribute
// list geared toward 3D materials.
type shaderToml struct {
	Name             string              `toml:"name"`
	BytecodeFile     string              `toml:"bytecode_file"`
	Stage            string              `toml:"stage"`
	Bindings         []DescriptorBinding `toml:"binding"`
	VertexLayout     []VertexAttribute   `toml:"vertex_attribute"`
	InstanceLayout   []VertexAttribute   `toml:"instance_attribute"`
	VertexStride     uint32              `toml:"vertex_stride"`
	InstanceStride   uint32              `toml:"instance_stride"`
}

// ShaderReflection is the decoded form of one shader's .toml sidecar:
// its SPIR-V bytecode plus the binding/attribute layout a Pipeline
// needs to build a descriptor-set layout and vertex-input state
// without hand-written C-layout structs (spec §4.7, §9's
// "PipelineDescriptor value built at startup").
type ShaderReflection struct {
	Name           string
	Stage          vk.ShaderStageFlagBits
	Bytecode       []byte
	Bindings       []DescriptorBinding
	VertexLayout   []VertexAttribute
	InstanceLayout []VertexAttribute
	VertexStride   uint32
	InstanceStride uint32
}

func stageFromString(s string) (vk.ShaderStageFlagBits, error) {
	switch s {
	case "vertex":
		return vk.ShaderStageVertexBit, nil
	case "fragment":
		return vk.ShaderStageFragmentBit, nil
	default:
		return 0, fmt.Errorf("gpu: unknown shader stage %q", s)
	}
}

// LoadShaderReflection reads a .toml sidecar at tomlPath and the
// paired SPIR-V bytecode it names, returning a decoded reflection
// value.
func LoadShaderReflection(tomlPath, baseDir string) (*ShaderReflection, error) {
	raw, err := os.ReadFile(tomlPath)
	if err != nil {
		return nil, err
	}
	var cfg shaderToml
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	stage, err := stageFromString(cfg.Stage)
	if err != nil {
		return nil, err
	}

	bytecode, err := os.ReadFile(baseDir + "/" + cfg.BytecodeFile)
	if err != nil {
		return nil, err
	}

	return &ShaderReflection{
		Name: cfg.Name, Stage: stage, Bytecode: bytecode,
		Bindings: cfg.Bindings, VertexLayout: cfg.VertexLayout, InstanceLayout: cfg.InstanceLayout,
		VertexStride: cfg.VertexStride, InstanceStride: cfg.InstanceStride,
	}, nil
}
