package config

import (
	"context"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Loader reads and decodes one tenant document from a YAML file.
type Loader struct {
	path string
}

// NewLoader constructs a Loader reading from path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads, env-expands, decodes, defaults, and validates the tenant
// document at the loader's path.
func (l *Loader) Load(_ context.Context) (*TenantDocument, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read tenant config %s: %w", l.path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tenant config %s: %w", l.path, err)
	}

	expanded, _ := ExpandEnvVarsInData(raw).(map[string]interface{})

	doc := &TenantDocument{}
	if err := decodeDocument(expanded, doc); err != nil {
		return nil, fmt.Errorf("decode tenant config %s: %w", l.path, err)
	}

	doc.SetDefaults()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate tenant config %s: %w", l.path, err)
	}

	return doc, nil
}

// LoadTenantFile is a convenience wrapper for a one-shot load, used by
// the validate command which never needs a Loader instance afterward.
func LoadTenantFile(ctx context.Context, path string) (*TenantDocument, error) {
	return NewLoader(path).Load(ctx)
}

func decodeDocument(input map[string]interface{}, output *TenantDocument) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
