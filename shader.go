package lumenvk

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
)

const spirvMagic = 0x07230203

// ShaderProgram is the compiled SPIR-V of a vertex and a fragment stage.
// Both stages use the entry point "main".
type ShaderProgram struct {
	Vertex   []byte
	Fragment []byte
}

func checkSPIRV(name string, code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return fmt.Errorf("shader %s: %d bytes is not a whole number of SPIR-V words", name, len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return fmt.Errorf("shader %s: missing SPIR-V magic number", name)
	}
	return nil
}

// Validate checks that both stages hold SPIR-V.
func (p ShaderProgram) Validate() error {
	if err := checkSPIRV("vertex", p.Vertex); err != nil {
		return err
	}
	return checkSPIRV("fragment", p.Fragment)
}

// LoadShaderProgram reads the vertex and fragment bytecode files
// concurrently.
func LoadShaderProgram(ctx context.Context, vertexPath, fragmentPath string) (ShaderProgram, error) {
	var p ShaderProgram
	g, ctx := errgroup.WithContext(ctx)
	load := func(path string, dst *[]byte) func() error {
		return func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			code, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read shader: %w", err)
			}
			if err := checkSPIRV(path, code); err != nil {
				return err
			}
			*dst = code
			return nil
		}
	}
	g.Go(load(vertexPath, &p.Vertex))
	g.Go(load(fragmentPath, &p.Fragment))
	if err := g.Wait(); err != nil {
		return ShaderProgram{}, err
	}
	return p, nil
}
