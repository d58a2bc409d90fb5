package feed

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type RuleCache struct {
	rulesDir string
	cache    map[string]*Rule
	mu       sync.RWMutex
}

// NewRuleCache returns a cache holding the default rules. Files loaded from
// rulesDir are added on top and replace a default rule with the same name.
func NewRuleCache(rulesDir string) *RuleCache {
	return &RuleCache{
		rulesDir: rulesDir,
		cache:    defaultRuleMap(),
	}
}

func (rc *RuleCache) Run() error {
	if rc.rulesDir == "" {
		return nil
	}
	if _, err := os.Stat(rc.rulesDir); os.IsNotExist(err) {
		slog.Debug("Rules directory not found, using default rules", "dir", rc.rulesDir)
		return nil
	}

	files, err := filepath.Glob(filepath.Join(rc.rulesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		ruleName := strings.TrimSuffix(filepath.Base(file), ".yml")

		rule, err := rc.LoadRule(ruleName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Rule loaded", "rule", ruleName, "categories", rule.Categories, "excludes", len(rule.Excludes))
	}

	return nil
}

// Reload drops file-based rules and reads the rules directory again. The
// cache is swapped only when every file is valid.
func (rc *RuleCache) Reload() error {
	fresh := NewRuleCache(rc.rulesDir)
	if err := fresh.Run(); err != nil {
		return err
	}

	fresh.mu.RLock()
	defer fresh.mu.RUnlock()

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache = fresh.cache

	return nil
}

func (rc *RuleCache) LoadRule(ruleName string) (*Rule, error) {
	ruleFile := rc.getRuleFilePath(ruleName)
	rule, err := rc.parseRule(ruleFile)
	if err != nil {
		return nil, err
	}

	rule.Name = ruleName

	if err := validateRule(rule); err != nil {
		return nil, fmt.Errorf("invalid rule %s: %w", ruleFile, err)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache[rule.Name] = rule

	copied := rule.clone()
	return &copied, nil
}

func (rc *RuleCache) GetRule(ruleName string) (*Rule, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	rule, ok := rc.cache[ruleName]
	if !ok {
		return nil, fmt.Errorf("rule with name '%s' not found", ruleName)
	}

	copied := rule.clone()
	return &copied, nil
}

// GetRules returns a copy of every rule, sorted by name
func (rc *RuleCache) GetRules() []Rule {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	rules := make([]Rule, 0, len(rc.cache))
	for _, rule := range rc.cache {
		rules = append(rules, rule.clone())
	}
	slices.SortFunc(rules, func(a, b Rule) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return rules
}

func (rc *RuleCache) RuleSet() RuleSet {
	return NewRuleSet(rc.GetRules())
}

func (rc *RuleCache) GetRuleCount() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.cache)
}

func (rc *RuleCache) parseRule(ruleFile string) (*Rule, error) {
	data, err := os.ReadFile(ruleFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var rule Rule
	if err := yaml.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if rule.Field == "" {
		rule.Field = FieldTitle
	}

	return &rule, nil
}

func validateRule(rule *Rule) error {
	if rule == nil {
		return fmt.Errorf("rule is nil")
	}
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(rule.Categories) == 0 {
		return fmt.Errorf("at least one category slug is required")
	}
	for i, slug := range rule.Categories {
		if strings.TrimSpace(slug) == "" {
			return fmt.Errorf("empty category slug at index %d", i)
		}
	}

	validFields := map[string]bool{
		FieldTitle: true,
	}
	if !validFields[rule.Field] {
		return fmt.Errorf("invalid rule field: %s", rule.Field)
	}

	if len(rule.Excludes) == 0 {
		return fmt.Errorf("rule must have at least one exclude keyword")
	}
	for i, exclude := range rule.Excludes {
		if strings.TrimSpace(exclude) == "" {
			return fmt.Errorf("empty exclude keyword at index %d", i)
		}
	}

	return nil
}

func (rc *RuleCache) getRuleFilePath(ruleName string) string {
	return filepath.Join(rc.rulesDir, ruleName+".yml")
}

func defaultRuleMap() map[string]*Rule {
	defaults := DefaultRules()
	m := make(map[string]*Rule, len(defaults))
	for i := range defaults {
		m[defaults[i].Name] = &defaults[i]
	}
	return m
}

func (r *Rule) clone() Rule {
	return Rule{
		Name:       r.Name,
		Categories: slices.Clone(r.Categories),
		Field:      r.Field,
		Excludes:   slices.Clone(r.Excludes),
	}
}
