package api

import (
	"os"
	"strings"
)

const (
	ChronicleEnvPrefix = "CHRONICLE_"
)

func ReadChronicleVariable(name string) string {
	if strings.HasPrefix(name, ChronicleEnvPrefix) {
		return os.Getenv(name)
	}
	return ""
}
