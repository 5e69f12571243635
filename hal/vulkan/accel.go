package vulkan

import "github.com/andewx/lumenvk/hal"

func (d *Device) AccelerationStructureBuildSizes(*hal.AccelerationStructureGeometry) (hal.AccelerationStructureSizes, error) {
	return hal.AccelerationStructureSizes{}, hal.ErrUnsupported
}

func (d *Device) CreateAccelerationStructure(*hal.AccelerationStructureDescriptor) (hal.AccelerationStructure, error) {
	return nil, hal.ErrUnsupported
}

func (d *Device) BuildAccelerationStructureHost(*hal.AccelerationStructureBuild) error {
	return hal.ErrUnsupported
}
