//go:build debug_vmem

package memutils

// DebugValidate calls Validate on the provided object and panics if it returns an error.
// This method no-ops unless the debug_vmem build tag is present.
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 verifies that value is a power of two and panics if it is not.
// This method no-ops unless the debug_vmem build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
