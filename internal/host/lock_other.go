//go:build !unix

package host

import "os"

// Advisory locks are unavailable; ownership is only enforced in-process.
func tryLockFile(*os.File) error {
	return nil
}

func unlockFile(*os.File) error {
	return nil
}
