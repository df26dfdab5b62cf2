//go:build !linux
// +build !linux

package kernel

import "fmt"

func NewLinuxNotifySource(watchTarget string, mount bool) (NotifySource, error) {
	return nil, fmt.Errorf("kernel: fanotify notifications are only available on linux")
}
