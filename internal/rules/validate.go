// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"strconv"
	"strings"

	nperrors "netpolicy.dev/netpolicy/internal/errors"
)

var canonicalStates = map[string]bool{
	"NORMAL":   true,
	"DEGRADED": true,
	"FAILOVER": true,
	"RECOVERY": true,
}

// Validate runs the structural checks of spec §4.1 against a decoded
// RuleSet, regardless of whether it came from YAML or the DSL.
func Validate(rs *RuleSet) error {
	if len(rs.Rules) == 0 {
		return nperrors.Invalid("rules must not be empty")
	}
	for i := range rs.Rules {
		if err := validateRule(&rs.Rules[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(r *Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return nperrors.Invalid("rule name is required")
	}
	if r.Priority < 0 {
		return nperrors.Invalid("rule %q: priority must be >= 0", r.Name)
	}
	if r.When != nil && r.When.State != nil {
		if err := validateStateSelector(r.Name, r.When.State); err != nil {
			return err
		}
	}
	if r.Disable != nil {
		if err := validateStateSelector(r.Name, r.Disable); err != nil {
			return err
		}
	}
	if err := validateMatch(r.Name, &r.Match); err != nil {
		return err
	}
	return validateAction(r.Name, &r.Action)
}

func validateMatch(name string, m *Match) error {
	if m.Any != nil && *m.Any {
		return nil
	}
	if m.SNI == nil && m.Protocol == nil && m.Port == nil && m.LatencyMs == nil && m.RttMs == nil {
		return nperrors.Invalid("rule %q: match must contain at least one field or any: true", name)
	}
	if m.Port != nil {
		if err := ValidatePortPattern(*m.Port); err != nil {
			return nperrors.Invalid("rule %q: %s", name, err.Error())
		}
	}
	return nil
}

func validateAction(name string, a *Action) error {
	primaries := 0
	if a.Route != nil {
		primaries++
	}
	if a.SwitchRoute != nil {
		primaries++
	}
	if a.Block != nil && *a.Block {
		primaries++
	}
	if a.Throttle != nil {
		primaries++
	}
	if primaries == 0 {
		return nperrors.Invalid("rule %q: action must include one primary action", name)
	}
	if primaries > 1 {
		return nperrors.Invalid("rule %q: action must not include multiple primary actions", name)
	}
	return nil
}

func validateStateSelector(ruleName string, s *StateSelector) error {
	if len(s.Values) == 0 {
		return nperrors.Invalid("rule %q: state list must not be empty", ruleName)
	}
	for _, v := range s.Values {
		if !canonicalStates[strings.ToUpper(strings.TrimSpace(v))] {
			return nperrors.Invalid("rule %q: invalid state value: %s", ruleName, v)
		}
	}
	return nil
}

// ValidatePortPattern checks the comma-separated port-list/range grammar of
// spec §3 without needing a MatchContext — used by validation at parse
// time. The engine's port matching parses the same grammar on its own.
func ValidatePortPattern(value string) error {
	for _, entry := range strings.Split(value, ",") {
		token := strings.TrimSpace(entry)
		if token == "" {
			return nperrors.Invalid("port pattern must not contain empty entries")
		}
		if start, end, ok := strings.Cut(token, "-"); ok {
			lo, err := strconv.ParseUint(strings.TrimSpace(start), 10, 16)
			if err != nil {
				return nperrors.Invalid("invalid port range start: %s", start)
			}
			hi, err := strconv.ParseUint(strings.TrimSpace(end), 10, 16)
			if err != nil {
				return nperrors.Invalid("invalid port range end: %s", end)
			}
			if lo > hi {
				return nperrors.Invalid("invalid port range (start > end): %s", token)
			}
			continue
		}
		if _, err := strconv.ParseUint(token, 10, 16); err != nil {
			return nperrors.Invalid("invalid port value: %s", token)
		}
	}
	return nil
}
