package config

import (
	"os"
	"strings"

	"github.com/hashicorp/go-envparse"
	log "github.com/sirupsen/logrus"
)

// ParseEnvFiles reads the comma separated dotenv files in s. Later files
// override earlier ones; unreadable files are logged and skipped.
func ParseEnvFiles(s string) map[string]string {
	result := make(map[string]string)
	for _, envFilePath := range strings.Split(s, ",") {
		envFilePath = strings.TrimSpace(envFilePath)
		if envFilePath == "" {
			continue
		}
		f, err := os.Open(envFilePath)
		if err != nil {
			log.WithFields(log.Fields{
				log.ErrorKey: err,
				"file":       envFilePath,
			}).Error("Read file failed: " + envFilePath)
			continue
		}
		r, err := envparse.Parse(f)
		f.Close()
		if err != nil {
			log.WithFields(log.Fields{
				log.ErrorKey: err,
				"file":       envFilePath,
			}).Error("Parse env file failed: " + envFilePath)
			continue
		}
		for k, v := range r {
			result[k] = v
		}
	}
	return result
}

// LoadEnvFiles exports the variables of the dotenv files in s into the
// process environment, without overriding variables that are already set
func LoadEnvFiles(s string) {
	for k, v := range ParseEnvFiles(s) {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		os.Setenv(k, v)
	}
}
