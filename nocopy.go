package coflow

// noCopy flags values that must not be copied after first use to
// go vet's copylocks check. Task embeds it.
type noCopy struct{}

// Lock is a no-op used by go vet.
func (*noCopy) Lock() {}

// Unlock is a no-op used by go vet.
func (*noCopy) Unlock() {}
