// =============================================================================
// DUIMP Flattener - Configuration Module
// =============================================================================
//
// This module loads the main configuration file. Every setting has a default,
// so a missing file is not an error: the defaults alone describe a working
// setup writing to ./data/duimp.db.
//
// LOADING ORDER:
//   1. Defaults (DefaultMainConfig)
//   2. YAML file, when present
//   3. Defaults re-applied to fields the file left empty
//   4. Struct validation (validator/v10)
//
// Environment and flag overrides are applied by the cmd package on top of
// the loaded struct.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tiagojmoraes/projeto-duimp/internal/schema"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// STORAGE SETTINGS
	// =========================================================================

	// DatabasePath is the SQLite database file.
	// Default: "./data/duimp.db"
	DatabasePath string `yaml:"database_path" validate:"required"`

	// ItemsTable is the table receiving flattened line items.
	// Default: "itens_data"
	ItemsTable string `yaml:"items_table" validate:"required,sqlident"`

	// HeaderTable is the table receiving the declaration header.
	// Default: "duimp_identificacao"
	HeaderTable string `yaml:"header_table" validate:"required,sqlident,nefield=ItemsTable"`

	// SnapshotColumn is the column holding the table snapshot on every row.
	// Default: "table_json"
	SnapshotColumn string `yaml:"snapshot_column" validate:"required,sqlident"`

	// ReplaceExisting drops a table before each batch. When false, a table
	// left by a previous batch is reused with its own column set.
	// Default: true
	ReplaceExisting *bool `yaml:"replace_existing"`

	// PercentagePrecision is the number of decimals kept in pesoPercentual.
	// Default: 8
	PercentagePrecision int32 `yaml:"percentage_precision" validate:"gte=0,lte=16"`

	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for *.json documents when no file is given.
	// Default: "./input"
	InputDir string `yaml:"input_dir" validate:"required"`

	// OutputDir receives snapshots, exports, error logs and summaries.
	// Default: "./output"
	OutputDir string `yaml:"output_dir" validate:"required"`

	// InputArchiveDir receives processed input files.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir" validate:"required"`

	// ArchiveProcessed moves input files to InputArchiveDir after a
	// successful batch.
	// Default: false
	ArchiveProcessed bool `yaml:"archive_processed"`

	// OutputNameFormat names snapshot files written to OutputDir.
	// Placeholders: {table}, {uuid}, {timestamp}, {date}
	// Default: "{table}_{timestamp}.json"
	OutputNameFormat string `yaml:"output_name_format" validate:"required"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is "stdout", "stderr" or a file path.
	// Default: "stderr"
	LogFile string `yaml:"log_file" validate:"required"`

	// LogLevel controls the verbosity of logging.
	// Default: "info"
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat is "console" or "json".
	// Default: "console"
	LogFormat string `yaml:"log_format" validate:"oneof=console json"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxReportedErrors caps the row errors kept in a batch report.
	// Default: 100
	MaxReportedErrors int `yaml:"max_reported_errors" validate:"gte=1"`

	// ItemRules derive or rewrite item columns after extraction.
	ItemRules []FieldRule `yaml:"item_rules" validate:"dive"`

	// HeaderRules derive or rewrite header columns after extraction.
	HeaderRules []FieldRule `yaml:"header_rules" validate:"dive"`
}

// =============================================================================
// FIELD RULES
// =============================================================================

// FieldRule writes Field from the value of Source after applying Actions in
// order. Source defaults to Field.
type FieldRule struct {
	Field   string   `yaml:"field" validate:"required"`
	Source  string   `yaml:"source,omitempty"`
	Actions []Action `yaml:"actions" validate:"required,min=1,dive"`
}

// SourceField returns the field the rule reads from.
func (r FieldRule) SourceField() string {
	if r.Source != "" {
		return r.Source
	}
	return r.Field
}

// Action is one transformation step.
type Action struct {
	// Type selects the transformation (see converter.ApplyAction).
	Type string `yaml:"type" validate:"required,oneof=trim uppercase lowercase prepend_string append_string replace regex_replace pad_zeros_to_length extract_digits lookup lookup_with_default if_empty_use_default format_cnpj"`

	// Value is the parameter of the transformation, or the default for
	// lookup_with_default and if_empty_use_default.
	Value string `yaml:"value,omitempty"`

	// Find is the substring or pattern for replace and regex_replace.
	Find string `yaml:"find,omitempty"`

	// LookupTable maps input values to output values.
	LookupTable map[string]string `yaml:"lookup_table,omitempty"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultItemRules derive codigoFornLOGIX from the exporter code.
func DefaultItemRules() []FieldRule {
	return []FieldRule{{
		Field:  "codigoFornLOGIX",
		Source: "codigoExportador",
		Actions: []Action{{
			Type:        "lookup_with_default",
			Value:       "Cadastrar código do Fornecedor",
			LookupTable: map[string]string{"OPE_2": "104629"},
		}},
	}}
}

// DefaultHeaderRules derive codFilial from the importer CNPJ, then format
// the CNPJ itself. Order matters: codFilial must read the raw digits.
func DefaultHeaderRules() []FieldRule {
	return []FieldRule{
		{
			Field:  "codFilial",
			Source: "cnpjImportador",
			Actions: []Action{
				{Type: "extract_digits"},
				{
					Type:        "lookup_with_default",
					Value:       "Cadastrar Código",
					LookupTable: map[string]string{"85090033001366": "18"},
				},
			},
		},
		{
			Field:   "cnpjImportador",
			Actions: []Action{{Type: "format_cnpj"}},
		},
	}
}

// DefaultMainConfig returns the configuration used when no file exists.
func DefaultMainConfig() *MainConfig {
	cfg := &MainConfig{}
	applyMainConfigDefaults(cfg)
	return cfg
}

// Replace reports whether tables are dropped before each batch.
func (c *MainConfig) Replace() bool {
	return c.ReplaceExisting == nil || *c.ReplaceExisting
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.DatabasePath == "" {
		config.DatabasePath = "./data/duimp.db"
	}
	if config.ItemsTable == "" {
		config.ItemsTable = "itens_data"
	}
	if config.HeaderTable == "" {
		config.HeaderTable = "duimp_identificacao"
	}
	if config.SnapshotColumn == "" {
		config.SnapshotColumn = schema.DefaultSnapshotField
	}
	if config.ReplaceExisting == nil {
		replace := true
		config.ReplaceExisting = &replace
	}
	if config.PercentagePrecision == 0 {
		config.PercentagePrecision = 8
	}
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = "{table}_{timestamp}.json"
	}
	if config.LogFile == "" {
		config.LogFile = "stderr"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "console"
	}
	if config.MaxReportedErrors == 0 {
		config.MaxReportedErrors = 100
	}
	if config.ItemRules == nil {
		config.ItemRules = DefaultItemRules()
	}
	if config.HeaderRules == nil {
		config.HeaderRules = DefaultHeaderRules()
	}
}

// =============================================================================
// CONFIGURATION LOADING
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file. A missing
// file yields the defaults.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyMainConfigDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return schema.ValidIdent(fl.Field().String())
	})
	return v
}

// Validate checks a configuration, for instance after overrides were applied.
func Validate(config *MainConfig) error {
	if err := validate.Struct(config); err != nil {
		return err
	}
	if config.SnapshotColumn == schema.ColumnID || config.SnapshotColumn == schema.ColumnInsertedAt {
		return fmt.Errorf("snapshot_column %q collides with a generated column", config.SnapshotColumn)
	}
	return nil
}
