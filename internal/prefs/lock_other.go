//go:build !unix

package prefs

import "os"

// Advisory locks are unavailable; writers are only serialized in-process.
func lockFile(*os.File) error {
	return nil
}

func unlockFile(*os.File) error {
	return nil
}
