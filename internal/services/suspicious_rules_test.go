package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluate(rules []SuspicionRule, ua, url string) []string {
	reasons := []string{}
	for _, rule := range rules {
		if reason, ok := rule.Check(SuspiciousRequestInput{UserAgent: ua, URL: url}); ok {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

func TestDefaultRules_Detection(t *testing.T) {
	rules := DefaultRules()
	browser := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

	tests := []struct {
		name     string
		ua       string
		url      string
		expected []string
	}{
		{"clean request", browser, "/api/tasks?status=todo&limit=20", []string{}},
		{"scanner agent", "Nikto/2.5.0", "/", []string{"Suspicious user agent: nikto"}},
		{"curl agent", "curl/8.4.0", "/", []string{"Suspicious user agent: curl"}},
		{"empty agent", "", "/", []string{}},
		{"union select", browser, "/api/tasks?id=1%20UNION%20SELECT%20password", []string{ReasonSQLInjection}},
		{"or 1=1", browser, "/search?q=x%20or%201=1", []string{ReasonSQLInjection}},
		{"admin comment", browser, "/sign-in?user=admin'--", []string{ReasonSQLInjection}},
		{"drop table", browser, "/api/tasks?q=1;DROP%20TABLE%20tasks", []string{ReasonSQLInjection}},
		{"script tag", browser, "/search?q=%3Cscript%3Ealert(1)%3C/script%3E", []string{ReasonXSS}},
		{"javascript uri", browser, "/redirect?to=javascript:alert(1)", []string{ReasonXSS}},
		{"event handler", browser, "/p?x=%3Cimg%20src=x%20onerror=alert(1)%3E", []string{ReasonXSS}},
		{"iframe", browser, "/p?x=%3Ciframe%20src=//evil%3E", []string{ReasonXSS}},
		{"eval", browser, "/p?x=eval(atob('YQ=='))", []string{ReasonXSS}},
		{"dot dot slash", browser, "/files/../../etc/passwd", []string{ReasonPathTraversal}},
		{"backslash", browser, "/files/..\\..\\windows", []string{ReasonPathTraversal}},
		{"encoded dots", browser, "/files/%2e%2e/secret", []string{ReasonPathTraversal}},
		{"union select with malformed escape", browser, "/api/tasks?q=union%20select%20password%20from%20users&x=%zz", []string{ReasonSQLInjection}},
		{"script tag with trailing percent", browser, "/search?q=%3Cscript%3Ealert(1)&x=100%", []string{ReasonXSS}},
		{"plus encoded spaces", browser, "/search?q=1+union+select+2", []string{ReasonSQLInjection}},
		{"pointer event handler", browser, "/p?x=%3Cdiv%20onpointerover=alert(1)%3E", []string{ReasonXSS}},
		{"animation event handler", browser, "/p?x=%3Cdiv%20style=x%20onanimationstart%20=alert(1)%3E", []string{ReasonXSS}},
		{"slash separated handler", browser, "/p?x=%3Csvg/onfocusin=alert(1)%3E", []string{ReasonXSS}},
		{"uppercase encoded dots", browser, "/files/%2E%2E/secret", []string{ReasonPathTraversal}},
		{
			"every family",
			"sqlmap/1.7",
			"/x/../y?q=%3Cscript%3E&id=1%20union%20select%201",
			[]string{"Suspicious user agent: sqlmap", ReasonSQLInjection, ReasonXSS, ReasonPathTraversal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, evaluate(rules, tt.ua, tt.url))
		})
	}
}

func TestDefaultRules_WordsContainingOnAreNotXSS(t *testing.T) {
	rules := DefaultRules()

	reasons := evaluate(rules, "Mozilla/5.0", "/api/tasks?location=home&condition=ok&button=1")
	assert.Empty(t, reasons)

	reasons = evaluate(rules, "Mozilla/5.0", "/settings?onboarding=done&online=1")
	assert.Empty(t, reasons)
}

func TestLenientUnescape(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"/plain/path", "/plain/path"},
		{"a%20b", "a b"},
		{"a+b", "a b"},
		{"%3Cscript%3E", "<script>"},
		{"%zz%3C", "%zz<"},
		{"100%", "100%"},
		{"x%4", "x%4"},
		{"%2e%2E", ".."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, lenientUnescape(tt.in))
		})
	}
}

func TestLoadRuleSetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `scanner_agents:
  - acunetix
sql_injection_patterns:
  - 'waitfor\s+delay'
xss_patterns:
  - '<svg'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	set, err := LoadRuleSetFile(path)
	require.NoError(t, err)
	assert.Contains(t, set.ScannerAgents, "acunetix")
	assert.Contains(t, set.ScannerAgents, "sqlmap")

	rules, err := BuildRules(set)
	require.NoError(t, err)

	assert.Equal(t, []string{"Suspicious user agent: acunetix"}, evaluate(rules, "Acunetix-Scanner", "/"))
	assert.Equal(t, []string{ReasonSQLInjection}, evaluate(rules, "Mozilla/5.0", "/?q=1;WAITFOR%20DELAY%20'0:0:5'"))
	assert.Equal(t, []string{ReasonXSS}, evaluate(rules, "Mozilla/5.0", "/?q=%3Csvg/onload%3E"))
}

func TestLoadRuleSetFile_EmptyPathReturnsDefaults(t *testing.T) {
	set, err := LoadRuleSetFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleSet(), set)
}

func TestLoadRuleSetFile_Errors(t *testing.T) {
	_, err := LoadRuleSetFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner_agents: [unterminated"), 0o600))
	_, err = LoadRuleSetFile(path)
	assert.Error(t, err)
}

func TestBuildRules_InvalidPattern(t *testing.T) {
	set := DefaultRuleSet()
	set.XSSPatterns = append(set.XSSPatterns, "(unclosed")

	_, err := BuildRules(set)
	assert.Error(t, err)
}
