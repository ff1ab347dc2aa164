package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ErrUnknownCollection is returned when a collection name is not in the tools config.
var ErrUnknownCollection = errors.New("unknown collection")

// Collection keys as they appear in the tools config.
const (
	SwissAirlinePolicy = "swiss_airline_policy_rag"
	Stories            = "stories_rag"
)

// CollectionConfig holds the settings used to build and query one vector database.
type CollectionConfig struct {
	Title            string `mapstructure:"title"`
	Description      string `mapstructure:"description"`
	UnstructuredDocs string `mapstructure:"unstructured_docs"`
	VectorDB         string `mapstructure:"vectordb"`
	CollectionName   string `mapstructure:"collection_name"`
	ChunkSize        int    `mapstructure:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap"`
	EmbeddingModel   string `mapstructure:"embedding_model"`
	K                int    `mapstructure:"k"`
}

// Validate checks that the collection can be built.
func (c CollectionConfig) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	case c.ChunkOverlap < 0:
		return fmt.Errorf("chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	case c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	case c.CollectionName == "":
		return errors.New("collection_name is required")
	case c.VectorDB == "":
		return errors.New("vectordb is required")
	case c.UnstructuredDocs == "":
		return errors.New("unstructured_docs is required")
	case c.EmbeddingModel == "":
		return errors.New("embedding_model is required")
	}
	return nil
}

// ToolsConfig is the parsed tools config keyed by collection key.
type ToolsConfig struct {
	Collections map[string]CollectionConfig
}

var defaultTitles = map[string]string{
	SwissAirlinePolicy: "Swiss Airline Policy",
	Stories:            "Stories",
}

// LoadTools reads the tools config at path. Keys ending in "_rag" are
// collections; anything else is ignored.
func LoadTools(path string) (*ToolsConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	raw := map[string]CollectionConfig{}
	for _, key := range v.AllKeys() {
		top, _, _ := strings.Cut(key, ".")
		if _, seen := raw[top]; seen || !strings.HasSuffix(top, "_rag") {
			continue
		}
		var cc CollectionConfig
		if err := v.UnmarshalKey(top, &cc); err != nil {
			return nil, fmt.Errorf("%s: %w", top, err)
		}
		if cc.Title == "" {
			cc.Title = defaultTitles[top]
		}
		if cc.Title == "" {
			cc.Title = top
		}
		if cc.K <= 0 {
			cc.K = 3
		}
		raw[top] = cc
	}
	return &ToolsConfig{Collections: raw}, nil
}

// Names returns the collection keys in a stable order: the two built-in
// collections first, then the rest alphabetically.
func (t *ToolsConfig) Names() []string {
	names := make([]string, 0, len(t.Collections))
	for _, fixed := range []string{SwissAirlinePolicy, Stories} {
		if _, ok := t.Collections[fixed]; ok {
			names = append(names, fixed)
		}
	}
	rest := make([]string, 0, len(t.Collections))
	for name := range t.Collections {
		if name != SwissAirlinePolicy && name != Stories {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Collection looks up a collection by key.
func (t *ToolsConfig) Collection(name string) (CollectionConfig, error) {
	cc, ok := t.Collections[name]
	if !ok {
		return CollectionConfig{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return cc, nil
}

// Resolve makes p absolute relative to root unless it is already absolute or
// an object storage URL.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) || hasScheme(p) {
		return p
	}
	return filepath.Join(root, p)
}

func hasScheme(p string) bool {
	scheme, _, ok := strings.Cut(p, "://")
	return ok && scheme != "" && !strings.ContainsRune(scheme, '/')
}
