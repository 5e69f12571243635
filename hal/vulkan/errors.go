package vulkan

import (
	"errors"
	"fmt"
	"runtime"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/lumenvk/hal"
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// NewError turns a failed result into an error naming the calling function.
// Success yields nil.
func NewError(ret vk.Result) error {
	if !isError(ret) {
		return nil
	}
	if ret == vk.ErrorDeviceLost {
		return hal.ErrDeviceLost
	}
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		return fmt.Errorf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
	}
	name := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
	}
	return fmt.Errorf("vulkan error: %s (%d) on %s at %s:%d",
		vk.Error(ret).Error(), ret, name, file, line)
}

func orPanic(err error, finalizers ...func()) {
	if err != nil {
		for _, fn := range finalizers {
			fn()
		}
		panic(err)
	}
}

// checkErr recovers a panic raised by orPanic into *err.
func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%+v", v)
	}
}

var errForeign = errors.New("vulkan: object belongs to another backend")
