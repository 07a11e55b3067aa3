package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// legacyKeyAliases maps key names used by older key files to the environment
// variables the CLI reads.
var legacyKeyAliases = map[string]string{
	"API_key": "OPENAI_API_KEY",
	"API_KEY": "OPENAI_API_KEY",
}

// LoadKeyFile exports the entries of a dotenv style credential file into the
// process environment. Variables already set in the environment win. A missing
// file is ignored.
func LoadKeyFile(path string) error {
	if path == "" {
		return nil
	}
	entries, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("No key file found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading key file %s: %w", path, err)
	}

	// Real names go first so an alias never shadows them.
	var aliased []string
	for key, value := range entries {
		if _, ok := legacyKeyAliases[key]; ok {
			aliased = append(aliased, key)
			continue
		}
		if err := exportKey(key, value); err != nil {
			return err
		}
	}
	sort.Strings(aliased)
	for _, key := range aliased {
		if err := exportKey(legacyKeyAliases[key], entries[key]); err != nil {
			return err
		}
	}
	return nil
}

func exportKey(key, value string) error {
	if _, set := os.LookupEnv(key); set {
		return nil
	}
	if err := os.Setenv(key, StripQuotes(value)); err != nil {
		return fmt.Errorf("exporting %s: %w", key, err)
	}
	return nil
}

// StripQuotes removes one layer of surrounding single or double quotes, which
// commonly sneak into pasted API keys.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "'")
	return strings.Trim(s, `"`)
}
