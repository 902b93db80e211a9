// Package config resolves daemon options from the command line, the
// environment, an optional .env file and a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/ntv2node/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "NTV2NODE_"

// LoadConfig fills opts with precedence CLI args > env vars > .env file >
// config file. opts must point to a struct; its Config field names the TOML
// file and an EnvFile field, when present, names the .env file. Flags cmd
// reports as explicitly set are never overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	changed := changedFlags(cmd)

	if path := stringField(v, "Config"); path != "" {
		if err := applyTOML(v, path, changed); err != nil {
			return err
		}
	}
	if path := stringField(v, "EnvFile"); path != "" {
		if err := LoadDotEnv(path); err != nil {
			return err
		}
	}
	applyEnv(v, changed)
	return nil
}

// LoadDotEnv exports the variables of a .env file. Variables already set in
// the environment keep their value; a missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

func stringField(v reflect.Value, name string) string {
	f := v.FieldByName(name)
	if !f.IsValid() || f.Kind() != reflect.String {
		return ""
	}
	return f.String()
}

func applyTOML(v reflect.Value, path string, changed map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// A missing config file leaves the defaults in place.
		return nil
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}

	t := v.Type()
	for i := range v.NumField() {
		ft := t.Field(i)
		if changed[fieldNameToFlag(ft.Name)] {
			continue
		}
		if tomlPath := ft.Tag.Get("toml"); tomlPath != "" {
			if value := getNestedValue(doc, tomlPath); value != nil {
				setFieldValue(v.Field(i), value)
			}
		}
	}
	return nil
}

func applyEnv(v reflect.Value, changed map[string]bool) {
	t := v.Type()
	for i := range v.NumField() {
		ft := t.Field(i)
		if changed[fieldNameToFlag(ft.Name)] {
			continue
		}
		if envKey := ft.Tag.Get("env"); envKey != "" {
			if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
				setFieldValueFromString(v.Field(i), envValue)
			}
		}
	}
}

// fieldNameToFlag converts a struct field name to a CLI flag name the way
// humacli derives it. Acronyms stay one word.
// Example: "LoggingLevel" -> "logging-level", "NATSEmbedded" -> "nats-embedded".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var result []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				result = append(result, '-')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue stores a decoded TOML value. TOML integers arrive as int64
// and may also populate float fields.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		if n, ok := value.(int64); ok && n >= 0 {
			field.SetUint(uint64(n))
		}
	case reflect.Float32, reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			if arr, ok := value.([]any); ok {
				slice := make([]string, len(arr))
				for i, v := range arr {
					if s, strOk := v.(string); strOk {
						slice[i] = s
					}
				}
				field.Set(reflect.ValueOf(slice))
			}
		}
	}
}

// setFieldValueFromString sets a field from an environment string. Unsigned
// fields accept 0x-prefixed hex.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		if u, err := strconv.ParseUint(value, 0, 64); err == nil {
			field.SetUint(u)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			slice := make([]string, len(parts))
			for i, part := range parts {
				slice[i] = strings.TrimSpace(part)
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
}

// ReadLoggingConfig reads the [logging] table of a TOML file. Keys other
// than level and format are per-module levels.
func ReadLoggingConfig(configPath string) (logging.Config, error) {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse logging config: %w", err)
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg, nil
}

// LoadLoggingConfig is ReadLoggingConfig that falls back to the defaults
// when the file is missing or invalid.
func LoadLoggingConfig(configPath string) logging.Config {
	if configPath == "" {
		return logging.Config{Level: "info", Format: "text", Modules: make(map[string]string)}
	}
	cfg, err := ReadLoggingConfig(configPath)
	if err != nil {
		return logging.Config{Level: "info", Format: "text", Modules: make(map[string]string)}
	}
	return cfg
}
