package config

import "os"

func IsDebug() bool {
	return os.Getenv("CREWDESK_DEBUG") == "1"
}
