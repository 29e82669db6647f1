// Package config loads .cvematch.toml defaults: read once at startup,
// merge over a hard-coded fallback, then let cobra flags override whatever
// the file set.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File is the subset of .cvematch.toml this binary understands. Any field
// left zero in the file keeps its Defaults() value.
type File struct {
	Db            string  `toml:"db"`
	W2v           string  `toml:"w2v"`
	Cwe           string  `toml:"cwe"`
	MaxScore      float64 `toml:"max-score"`
	MinHunkTokens int     `toml:"min-hunk-tokens"`
	InsCost       float64 `toml:"levenstein-ins-cost"`
	DelCost       float64 `toml:"levenstein-del-cost"`
}

// Defaults mirrors spec.md §6's stated CLI defaults.
func Defaults() File {
	return File{
		MaxScore:      0.2,
		MinHunkTokens: 30,
		InsCost:       2,
		DelCost:       2,
	}
}

// Load reads path if it exists, merging any nonzero field over base. A
// missing file is not an error — it simply leaves base untouched.
func Load(path string, base File) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, nil
	}
	var f File
	if err := toml.Unmarshal(b, &f); err != nil {
		return base, err
	}

	merged := base
	if f.Db != "" {
		merged.Db = f.Db
	}
	if f.W2v != "" {
		merged.W2v = f.W2v
	}
	if f.Cwe != "" {
		merged.Cwe = f.Cwe
	}
	if f.MaxScore != 0 {
		merged.MaxScore = f.MaxScore
	}
	if f.MinHunkTokens != 0 {
		merged.MinHunkTokens = f.MinHunkTokens
	}
	if f.InsCost != 0 {
		merged.InsCost = f.InsCost
	}
	if f.DelCost != 0 {
		merged.DelCost = f.DelCost
	}
	return merged, nil
}
