package services

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reason strings produced by the built-in rules. The request guard classifies
// blocked requests by looking for these prefixes.
const (
	ReasonScannerUserAgent = "Suspicious user agent"
	ReasonSQLInjection     = "SQL injection pattern detected"
	ReasonXSS              = "XSS pattern detected"
	ReasonPathTraversal    = "Path traversal attempt detected"
)

// SuspiciousRequestInput is the part of an HTTP request the rules look at
type SuspiciousRequestInput struct {
	UserAgent string
	URL       string // request URI as received, including the query string
}

// SuspicionResult lists every rule that matched
type SuspicionResult struct {
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons"`
}

// SuspicionRule inspects a request and returns a human-readable reason when it matches
type SuspicionRule struct {
	Name  string
	Check func(in SuspiciousRequestInput) (string, bool)
}

var defaultScannerAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "burp", "dirbuster",
	"gobuster", "wfuzz", "zgrab", "python-requests", "curl", "wget",
}

var defaultSQLPatterns = []string{
	`union\s+(all\s+)?select`,
	`\bor\s+1\s*=\s*1\b`,
	`'\s*or\s*'[^']*'\s*=\s*'`,
	`'\s*or\s+\d+\s*=\s*\d+`,
	`admin'\s*--`,
	`drop\s+table`,
	`insert\s+into`,
}

var defaultXSSPatterns = []string{
	`<script`,
	`javascript:`,
	// handler attribute after whitespace, a quote, < or /; query keys like &onboarding= stay clean
	`(^|[\s"'/<;])on[a-z]+\s*=`,
	`<iframe`,
	`eval\s*\(`,
}

var traversalSequences = []string{"../", "..\\", "%2e%2e"}

// RuleSet holds the pattern lists the default rules are compiled from
type RuleSet struct {
	ScannerAgents []string `yaml:"scanner_agents"`
	SQLPatterns   []string `yaml:"sql_injection_patterns"`
	XSSPatterns   []string `yaml:"xss_patterns"`
}

// DefaultRuleSet returns the built-in pattern lists
func DefaultRuleSet() RuleSet {
	return RuleSet{
		ScannerAgents: append([]string(nil), defaultScannerAgents...),
		SQLPatterns:   append([]string(nil), defaultSQLPatterns...),
		XSSPatterns:   append([]string(nil), defaultXSSPatterns...),
	}
}

// LoadRuleSetFile reads extra patterns from a YAML file and appends them to the built-in lists.
// An empty path returns the defaults.
func LoadRuleSetFile(path string) (RuleSet, error) {
	rules := DefaultRuleSet()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	var extra RuleSet
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rules.ScannerAgents = append(rules.ScannerAgents, extra.ScannerAgents...)
	rules.SQLPatterns = append(rules.SQLPatterns, extra.SQLPatterns...)
	rules.XSSPatterns = append(rules.XSSPatterns, extra.XSSPatterns...)
	return rules, nil
}

// BuildRules compiles a RuleSet into the ordered rule list:
// scanner user agent, SQL injection, XSS, path traversal.
func BuildRules(set RuleSet) ([]SuspicionRule, error) {
	sqlRes, err := compilePatterns(set.SQLPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid SQL injection pattern: %w", err)
	}
	xssRes, err := compilePatterns(set.XSSPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid XSS pattern: %w", err)
	}

	agents := make([]string, 0, len(set.ScannerAgents))
	for _, a := range set.ScannerAgents {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			agents = append(agents, a)
		}
	}

	return []SuspicionRule{
		ScannerUserAgentRule(agents),
		PatternRule("sql_injection", ReasonSQLInjection, sqlRes),
		PatternRule("xss", ReasonXSS, xssRes),
		PathTraversalRule(),
	}, nil
}

// DefaultRules returns the built-in rule list
func DefaultRules() []SuspicionRule {
	rules, err := BuildRules(DefaultRuleSet())
	if err != nil {
		// built-in patterns are constants
		panic(err)
	}
	return rules
}

// ScannerUserAgentRule matches user agents of known scanning tools
func ScannerUserAgentRule(agents []string) SuspicionRule {
	return SuspicionRule{
		Name: "scanner_user_agent",
		Check: func(in SuspiciousRequestInput) (string, bool) {
			ua := strings.ToLower(in.UserAgent)
			if ua == "" {
				return "", false
			}
			for _, agent := range agents {
				if strings.Contains(ua, agent) {
					return fmt.Sprintf("%s: %s", ReasonScannerUserAgent, agent), true
				}
			}
			return "", false
		},
	}
}

// PatternRule matches the request URL against a list of regular expressions
func PatternRule(name, reason string, patterns []*regexp.Regexp) SuspicionRule {
	return SuspicionRule{
		Name: name,
		Check: func(in SuspiciousRequestInput) (string, bool) {
			for _, candidate := range urlCandidates(in.URL) {
				for _, re := range patterns {
					if re.MatchString(candidate) {
						return reason, true
					}
				}
			}
			return "", false
		},
	}
}

// PathTraversalRule matches ../, ..\ and the encoded %2e%2e form
func PathTraversalRule() SuspicionRule {
	return SuspicionRule{
		Name: "path_traversal",
		Check: func(in SuspiciousRequestInput) (string, bool) {
			for _, candidate := range urlCandidates(in.URL) {
				lower := strings.ToLower(candidate)
				for _, seq := range traversalSequences {
					if strings.Contains(lower, seq) {
						return ReasonPathTraversal, true
					}
				}
			}
			return "", false
		},
	}
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// urlCandidates returns the raw URL and, when it differs, its percent-decoded form
func urlCandidates(raw string) []string {
	decoded := lenientUnescape(raw)
	if decoded == raw {
		return []string{raw}
	}
	return []string{raw, decoded}
}

// lenientUnescape decodes every valid %XX escape and '+'. Malformed escapes
// are copied through, so one bad sequence cannot hide the rest of the URL.
func lenientUnescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
