package metadata

// PatchRandomSuffix replaces the collision suffix generator and returns a
// function restoring it.
func PatchRandomSuffix(f func() string) func() {
	orig := randomSuffix
	randomSuffix = f
	return func() { randomSuffix = orig }
}
