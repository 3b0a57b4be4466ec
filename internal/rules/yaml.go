// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"gopkg.in/yaml.v3"

	nperrors "netpolicy.dev/netpolicy/internal/errors"
)

// ParseYAML decodes a YAML document with a top-level `rules:` key into a
// validated RuleSet (spec §4.1, §6).
func ParseYAML(doc string) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal([]byte(doc), &rs); err != nil {
		return nil, nperrors.Yaml("%s", err.Error())
	}
	if err := Validate(&rs); err != nil {
		return nil, err
	}
	return &rs, nil
}
