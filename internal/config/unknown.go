package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSectionKeys lists the valid keys for each config section.
var knownSectionKeys = map[string]map[string]bool{
	"store": {"db_path": true},
	"sync": {
		"interval": true, "batch_size": true, "start_online": true, "shutdown_timeout": true,
	},
	"remote": {
		"min_latency": true, "max_latency": true, "failure_rate": true,
		"rate_limit": true, "seed": true,
	},
	"logging": {"log_level": true, "log_file": true, "log_format": true},
}

// knownSectionsList is the sorted list of section names, used for
// suggestions when a whole section is misspelled.
var knownSectionsList = sortedKeys(knownSectionKeys)

// knownKeysList holds the sorted key list per section for Levenshtein
// matching. Sorted for deterministic suggestions when two candidates have
// the same edit distance.
var knownKeysList = func() map[string][]string {
	out := make(map[string][]string, len(knownSectionKeys))
	for section, keys := range knownSectionKeys {
		out[section] = sortedKeys(keys)
	}

	return out
}()

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		if err := buildKeyError(key.String()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key, optionally
// suggesting the closest known key in the same section.
func buildKeyError(keyStr string) error {
	parts := strings.SplitN(keyStr, ".", 2)
	section := parts[0]

	keys, sectionKnown := knownSectionKeys[section]
	if !sectionKnown || len(parts) == 1 {
		if suggestion := closestMatch(section, knownSectionsList); suggestion != "" && suggestion != section {
			return fmt.Errorf("unknown config key %q — did you mean [%s]?", keyStr, suggestion)
		}

		return fmt.Errorf("unknown config key %q", keyStr)
	}

	field := parts[1]
	if keys[field] {
		return nil
	}

	if suggestion := closestMatch(field, knownKeysList[section]); suggestion != "" {
		return fmt.Errorf("unknown config key %q — did you mean %q?", keyStr, section+"."+suggestion)
	}

	return fmt.Errorf("unknown config key %q", keyStr)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
