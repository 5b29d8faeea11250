//go:build !debug_vmem

package memutils

// DebugValidate no-ops unless the debug_vmem build tag is present.
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 no-ops unless the debug_vmem build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
}
