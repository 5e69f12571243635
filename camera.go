package lumenvk

import (
	"math"

	lin "github.com/xlab/linmath"

	"github.com/andewx/lumenvk/hal"
)

// UniformBlockSize is the size of the per-renderable uniform block: model,
// view and projection matrices.
const UniformBlockSize = 3 * 64

const nearPlane = 0.1

// Camera is a free-look perspective camera. Yaw and Pitch are in radians;
// zero looks down +Z.
type Camera struct {
	Position lin.Vec3
	Yaw      float32
	Pitch    float32
	FOV      float32 // vertical, degrees
	Near     float32
	Far      float32
	Aspect   float32
}

func NewCamera(s Settings) *Camera {
	c := &Camera{
		Position: lin.Vec3{0, 0, -3},
		FOV:      s.FOV,
		Near:     nearPlane,
		Far:      s.RenderDistance,
	}
	c.SetExtent(hal.Extent2D{Width: uint32(s.Resolution.Width), Height: uint32(s.Resolution.Height)})
	return c
}

// SetExtent updates the aspect ratio from a framebuffer size.
func (c *Camera) SetExtent(e hal.Extent2D) {
	if e.Height == 0 {
		return
	}
	c.Aspect = float32(e.Width) / float32(e.Height)
}

func (c *Camera) Forward() lin.Vec3 {
	yaw, pitch := float64(c.Yaw), float64(c.Pitch)
	return lin.Vec3{
		float32(math.Cos(pitch) * math.Sin(yaw)),
		float32(math.Sin(pitch)),
		float32(math.Cos(pitch) * math.Cos(yaw)),
	}
}

func (c *Camera) View() lin.Mat4x4 {
	f := c.Forward()
	eye := c.Position
	center := lin.Vec3{eye[0] + f[0], eye[1] + f[1], eye[2] + f[2]}
	up := lin.Vec3{0, 1, 0}
	var m lin.Mat4x4
	m.LookAt(&eye, &center, &up)
	return m
}

// Projection is the Vulkan clip space projection.
func (c *Camera) Projection() lin.Mat4x4 {
	var gl, m lin.Mat4x4
	gl.Perspective(radians(c.FOV), c.Aspect, c.Near, c.Far)
	VulkanProjectionMat(&m, &gl)
	return m
}

// UniformBlock encodes {model, view, proj} for a renderable.
func (c *Camera) UniformBlock(model *lin.Mat4x4) []byte {
	view, proj := c.View(), c.Projection()
	out := make([]byte, UniformBlockSize)
	putMat4(out[0:], model)
	putMat4(out[64:], &view)
	putMat4(out[128:], &proj)
	return out
}
