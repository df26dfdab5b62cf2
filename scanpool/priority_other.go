//go:build !linux
// +build !linux

package scanpool

// setIdlePriority is a no-op off Linux; scheduling/IO priority classes
// are a Linux-specific concern here.
func setIdlePriority() {}
