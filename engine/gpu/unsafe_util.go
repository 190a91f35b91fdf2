package gpu

import "unsafe"

// unsafePointerOf returns a vk-compatible PNext pointer for an
// extension struct; Vulkan-go's generated bindings take PNext as
// unsafe.Pointer.
func unsafePointerOf[T any](v *T) unsafe.Pointer {
	return unsafe.Pointer(v)
}

// sliceUint32 reinterprets a byte slice of SPIR-V bytecode as the
// uint32 slice vk.ShaderModuleCreateInfo.PCode expects.
func sliceUint32(b []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}
