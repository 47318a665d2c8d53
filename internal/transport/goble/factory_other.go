//go:build !darwin && !linux

package goble

func newPlatformDevice() (Scanner, error) {
	return nil, ErrUnsupportedPlatform
}
