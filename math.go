package lumenvk

import (
	"encoding/binary"
	"math"

	lin "github.com/xlab/linmath"
)

// vulkanClip maps GL clip space to Vulkan's: Y flipped, depth from [-1, 1]
// to [0, 1]. Columns first.
var vulkanClip = lin.Mat4x4{
	{1, 0, 0, 0},
	{0, -1, 0, 0},
	{0, 0, 0.5, 0},
	{0, 0, 0.5, 1},
}

// VulkanProjectionMat converts the GL style projection proj, as produced by
// linmath, into a Vulkan projection stored in m.
func VulkanProjectionMat(m *lin.Mat4x4, proj *lin.Mat4x4) {
	clip := vulkanClip
	m.Mult(&clip, proj)
}

func identity() lin.Mat4x4 {
	var m lin.Mat4x4
	m.Identity()
	return m
}

func radians(deg float32) float32 { return deg * math.Pi / 180 }

// putMat4 writes m column by column as 16 little-endian floats.
func putMat4(dst []byte, m *lin.Mat4x4) {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			binary.LittleEndian.PutUint32(dst[(c*4+r)*4:], math.Float32bits(m[c][r]))
		}
	}
}

// rowMajor3x4 drops the last row of m and lays it out row by row, the
// layout of an acceleration structure instance transform.
func rowMajor3x4(m *lin.Mat4x4) [12]float32 {
	var t [12]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			t[r*4+c] = m[c][r]
		}
	}
	return t
}
