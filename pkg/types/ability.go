package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Ability Move类型能力位集合
type Ability uint8

const (
	AbilityCopy Ability = 1 << iota
	AbilityDrop
	AbilityStore
	AbilityKey
)

// AbilityNone 空集合
const AbilityNone Ability = 0

// PrimitiveAbilities 原始类型（bool/整数/address/vector<u8>）具备的能力
const PrimitiveAbilities = AbilityCopy | AbilityDrop | AbilityStore

var abilityNames = []struct {
	a    Ability
	name string
}{
	{AbilityCopy, "copy"},
	{AbilityDrop, "drop"},
	{AbilityStore, "store"},
	{AbilityKey, "key"},
}

// AllAbilities 逐个列出的单项能力
func AllAbilities() []Ability {
	return []Ability{AbilityCopy, AbilityDrop, AbilityStore, AbilityKey}
}

// Has 是否包含other中的全部能力
func (a Ability) Has(other Ability) bool {
	return a&other == other
}

// Intersect 交集
func (a Ability) Intersect(other Ability) Ability {
	return a & other
}

// String 形如 "copy+drop"
func (a Ability) String() string {
	if a == AbilityNone {
		return "none"
	}
	parts := make([]string, 0, 4)
	for _, n := range abilityNames {
		if a.Has(n.a) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

// ParseAbility 解析单个能力名或"+"连接的组合
func ParseAbility(s string) (Ability, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return AbilityNone, nil
	}
	var out Ability
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' || r == ' ' }) {
		found := false
		for _, n := range abilityNames {
			if part == n.name {
				out |= n.a
				found = true
				break
			}
		}
		if !found {
			return AbilityNone, fmt.Errorf("unknown ability %q", part)
		}
	}
	return out, nil
}

// MarshalJSON 以名称数组序列化
func (a Ability) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 4)
	for _, n := range abilityNames {
		if a.Has(n.a) {
			names = append(names, n.name)
		}
	}
	return json.Marshal(names)
}

// UnmarshalJSON 接受名称数组或"+"连接字符串
func (a *Ability) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		var out Ability
		for _, name := range names {
			v, err := ParseAbility(name)
			if err != nil {
				return err
			}
			out |= v
		}
		*a = out
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ability: expected array or string: %w", err)
	}
	v, err := ParseAbility(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
