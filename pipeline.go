package lumenvk

import (
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

// minSampleShading is the fraction of samples shaded when sample-rate
// shading is on.
const minSampleShading = 0.2

// Pipeline is a graphics pipeline and its layout for one descriptor set
// layout and render pass.
type Pipeline struct {
	resource
	layout   hal.PipelineLayout
	pipeline hal.Pipeline
	samples  hal.SampleCount
}

// NewPipeline compiles program against pass. Shader modules only live for
// the duration of the call. Any failure is fatal.
func NewPipeline(ctx *GraphicsContext, name string, pass *RenderPass, set *DescriptorSet, program ShaderProgram) (p *Pipeline, err error) {
	if err := program.Validate(); err != nil {
		return nil, fatal("create pipeline "+name, err)
	}
	p = &Pipeline{resource: resource{name: name}, samples: pass.samples}
	defer func() {
		if err != nil {
			p.Destroy()
			p = nil
			err = fatal("create pipeline "+name, err)
		}
	}()

	vert, err := ctx.Device.CreateShaderModule(program.Vertex)
	if err != nil {
		return p, fmt.Errorf("vertex shader module: %w", err)
	}
	defer vert.Destroy()
	frag, err := ctx.Device.CreateShaderModule(program.Fragment)
	if err != nil {
		return p, fmt.Errorf("fragment shader module: %w", err)
	}
	defer frag.Destroy()

	p.layout, err = ctx.Device.CreatePipelineLayout([]hal.DescriptorSetLayout{set.Layout()})
	if err != nil {
		return p, err
	}
	p.deletion.PushResource(p.layout)

	sampleShading := pass.samples > hal.SampleCount1 && ctx.Enabled(GroupSampleShading)
	p.pipeline, err = ctx.Device.CreateGraphicsPipeline(&hal.GraphicsPipelineDescriptor{
		Layout:     p.layout,
		RenderPass: pass.Handle(),
		Stages: []hal.ShaderStageDescriptor{
			{Stage: hal.ShaderStageVertex, Module: vert, EntryPoint: "main"},
			{Stage: hal.ShaderStageFragment, Module: frag, EntryPoint: "main"},
		},
		VertexBindings:   []hal.VertexBinding{{Binding: 0, Stride: VertexStride}},
		VertexAttributes: vertexAttributes(),
		Samples:          pass.samples,
		SampleShading:    sampleShading,
		MinSampleShading: minSampleShading,
		CullMode:         hal.CullModeBack,
		DepthTest:        true,
	})
	if err != nil {
		return p, err
	}
	p.deletion.PushResource(p.pipeline)
	p.set(StatusCreated)
	Logger().Debug("pipeline created", "pipeline", name, "samples", pass.samples, "sample-shading", sampleShading)
	return p, nil
}

func (p *Pipeline) Handle() hal.Pipeline       { return p.pipeline }
func (p *Pipeline) Layout() hal.PipelineLayout { return p.layout }
func (p *Pipeline) Samples() hal.SampleCount   { return p.samples }
