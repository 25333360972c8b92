package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// GetWorkingFolder returns the folder holding the executable, where key files, the seed
// dump and the log are looked up. Falls back to the current directory.
func GetWorkingFolder() (string, error) {
	exePath, exeErr := os.Executable()
	if exeErr != nil {
		return os.Getwd()
	}
	return workingFolderOf(exePath), nil
}

func workingFolderOf(exePath string) string {
	workingFolder := filepath.Dir(exePath)

	// Adjust for MacOS app bundles
	if runtime.GOOS == "darwin" {
		if appIndex := strings.Index(workingFolder, ".app"); appIndex >= 0 {
			sepIndex := strings.LastIndex(workingFolder[:appIndex], string(os.PathSeparator))
			workingFolder = workingFolder[:sepIndex]
		}
	}
	return workingFolder
}
