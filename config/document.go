package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status tells the caller how Load obtained its result.
type Status int

const (
	StatusLoaded    Status = iota // document read as-is
	StatusCreated                 // no document; defaults written
	StatusRecovered               // unreadable document; defaults rewritten
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusRecovered:
		return "recovered"
	default:
		return "loaded"
	}
}

type entry struct {
	Name  string `json:"constant_name" yaml:"constant_name"`
	Type  string `json:"value_type" yaml:"value_type"`
	Value any    `json:"value" yaml:"value"`
}

type document struct {
	Configuration []entry `json:"configuration" yaml:"configuration"`
}

// Load reads the document at path. A missing document is created with
// defaults and an unreadable or inconsistent one is replaced by defaults;
// the returned error is only set when the replacement cannot be written.
func Load(path string) (Config, Status, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("configuration file not found, writing defaults", "path", path)
		cfg := Default()
		return cfg, StatusCreated, Save(path, cfg)
	}
	if err != nil {
		return Config{}, StatusLoaded, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(path, raw)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Warn("configuration file is damaged, restoring defaults", "path", path, "error", err)
		cfg = Default()
		return cfg, StatusRecovered, Save(path, cfg)
	}
	return cfg, StatusLoaded, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg Config) error {
	doc := document{Configuration: []entry{
		{Name: "borrow_date", Type: "int", Value: cfg.LoanDays},
		{Name: "cancel", Type: "str", Value: cfg.Cancel},
		{Name: "max_static_id", Type: "int", Value: cfg.MaxStaticID},
		{Name: "max_isbn", Type: "int", Value: cfg.MaxISBN},
		{Name: "max_borrow_count", Type: "int", Value: cfg.MaxBorrowCount},
		{Name: "overdue_penalty_scale", Type: "float", Value: cfg.PenaltyScale},
	}}

	var (
		out []byte
		err error
	)
	if isYAML(path) {
		out, err = yaml.Marshal(doc)
	} else {
		out, err = json.MarshalIndent(doc, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func decode(path string, raw []byte) (Config, error) {
	var doc document
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(raw, &doc)
	} else {
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return Config{}, err
	}
	if doc.Configuration == nil {
		return Config{}, errors.New(`missing "configuration" list`)
	}

	cfg := Default()
	for _, e := range doc.Configuration {
		if err := apply(&cfg, e); err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.Name, err)
		}
	}
	return cfg, nil
}

// apply coerces one entry by its declared type and stores it when the
// name is known. Unknown names are ignored.
func apply(cfg *Config, e entry) error {
	switch e.Type {
	case "int":
		n, err := toInt(e.Value)
		if err != nil {
			return err
		}
		switch e.Name {
		case "borrow_date":
			cfg.LoanDays = n
		case "max_static_id":
			cfg.MaxStaticID = n
		case "max_isbn":
			cfg.MaxISBN = n
		case "max_borrow_count":
			cfg.MaxBorrowCount = n
		case "overdue_penalty_scale":
			cfg.PenaltyScale = float64(n)
		}
	case "float":
		f, err := toFloat(e.Value)
		if err != nil {
			return err
		}
		if e.Name == "overdue_penalty_scale" {
			cfg.PenaltyScale = f
		}
	default:
		if e.Name == "cancel" {
			cfg.Cancel = fmt.Sprint(e.Value)
		}
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("unexpected value %v", v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("unexpected value %v", v)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
