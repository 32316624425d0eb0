package utils

import (
	"fmt"
	"os"
)

// CreateFolder creates each folder if it does not exist yet.
func CreateFolder(folders ...string) error {
	for _, folder := range folders {
		if folder == "" {
			continue
		}
		if err := os.MkdirAll(folder, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", folder, err)
		}
	}
	return nil
}
