package plan

import (
	"testing"

	"github.com/johndauphine/tapsync/internal/catalog"
	"github.com/johndauphine/tapsync/internal/rules"
)

const testCatalog = `{
  "streams": [
    {
      "stream": "account",
      "tap_stream_id": "account",
      "schema": {"properties": {
        "id": {"type": "integer"},
        "Name": {"type": "string"},
        "secret": {"type": "string"},
        "credit_card": {"type": "string"},
        "CreditCardNumber": {"type": "string"}
      }},
      "key_properties": ["id"],
      "metadata": []
    },
    {
      "stream": "contact",
      "tap_stream_id": "contact",
      "schema": {"properties": {
        "id": {"type": "integer"},
        "email": {"type": "string"},
        "credit_card": {"type": "string"}
      }},
      "metadata": []
    }
  ]
}`

func mustResolve(t *testing.T, rulesText string) (*Plan, []Warning) {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	rl, err := rules.Parse(rulesText)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	p, warnings := Resolve("salesforce", rl, cat)
	return p, warnings
}

func colSelected(t *testing.T, p *Plan, stream, col string) bool {
	t.Helper()
	s, ok := p.Stream(stream)
	if !ok {
		t.Fatalf("stream %s missing from plan", stream)
	}
	c, ok := s.Column(col)
	if !ok {
		t.Fatalf("column %s.%s missing from plan", stream, col)
	}
	return c.Selected
}

func TestResolveDefaultIsExclude(t *testing.T) {
	p, _ := mustResolve(t, "")
	if got := p.IncludedStreams(); len(got) != 0 {
		t.Errorf("empty rules included %v, want nothing (opt-in posture)", got)
	}
}

func TestResolveLastMatchWins(t *testing.T) {
	p, _ := mustResolve(t, "salesforce.account.*\n!salesforce.account.secret\n")

	s, _ := p.Stream("account")
	if !s.Selected {
		t.Fatal("account stream should be selected")
	}
	if colSelected(t, p, "account", "secret") {
		t.Error("secret should be excluded by the later rule")
	}
	for _, col := range []string{"id", "Name", "credit_card"} {
		if !colSelected(t, p, "account", col) {
			t.Errorf("column %s should remain included", col)
		}
	}
}

func TestResolveOverrideDoesNotEraseUnrelated(t *testing.T) {
	p, _ := mustResolve(t, "salesforce.account\nsalesforce.contact\n!salesforce.contact.email\n")

	if !colSelected(t, p, "account", "id") {
		t.Error("account.id must be untouched by contact-scoped rules")
	}
	if colSelected(t, p, "contact", "email") {
		t.Error("contact.email should be excluded")
	}
	if !colSelected(t, p, "contact", "id") {
		t.Error("contact.id should remain included")
	}
}

func TestResolveStreamExclusionIsAbsolute(t *testing.T) {
	p, _ := mustResolve(t, "!salesforce.account\nsalesforce.account.id\n")

	s, _ := p.Stream("account")
	if s.Selected {
		t.Error("column include must not resurrect an excluded stream")
	}
	if colSelected(t, p, "account", "id") {
		t.Error("columns of an excluded stream must be excluded")
	}
}

func TestResolveEmptyStreamDemotion(t *testing.T) {
	p, _ := mustResolve(t, "salesforce.contact\n!salesforce.contact.*\n")

	s, _ := p.Stream("contact")
	if s.Selected {
		t.Error("stream with zero included columns must be demoted to excluded")
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	p, _ := mustResolve(t, "SALESFORCE.Account\n!salesforce.account.name\nSalesforce.ACCOUNT.Name\n")

	s, _ := p.Stream("account")
	if !s.Selected {
		t.Fatal("rule SALESFORCE.Account must match catalog stream 'account'")
	}
	if !colSelected(t, p, "account", "Name") {
		t.Error("rule Salesforce.ACCOUNT.Name must match catalog column 'Name'")
	}
	if !colSelected(t, p, "account", "secret") {
		t.Error("stream include must apply regardless of rule casing")
	}
}

func TestResolveRegexScoping(t *testing.T) {
	p, _ := mustResolve(t, "salesforce.*.*\n!**./credit.*card.*/\n")

	for _, tc := range []struct{ stream, col string }{
		{"account", "credit_card"},
		{"account", "CreditCardNumber"},
		{"contact", "credit_card"},
	} {
		if colSelected(t, p, tc.stream, tc.col) {
			t.Errorf("%s.%s should be excluded by the regex rule", tc.stream, tc.col)
		}
	}
	if !colSelected(t, p, "account", "id") {
		t.Error("non-matching columns must stay included")
	}
}

func TestResolvePrimaryKeys(t *testing.T) {
	p, _ := mustResolve(t, "salesforce.contact\nsalesforce.contact.email -> primary-key\nsalesforce.account\n")

	contact, _ := p.Stream("contact")
	keys := contact.PrimaryKeys()
	if len(keys) != 1 || keys[0] != "email" {
		t.Errorf("contact keys = %v, want [email] from hint", keys)
	}

	// Native key from catalog key_properties
	account, _ := p.Stream("account")
	keys = account.PrimaryKeys()
	if len(keys) != 1 || keys[0] != "id" {
		t.Errorf("account keys = %v, want [id] from catalog", keys)
	}
}

func TestResolvePrimaryKeyHintLoss(t *testing.T) {
	p, _ := mustResolve(t, "salesforce.account\nsalesforce.account.credit_card -> primary-key\n!salesforce.*./credit.*card.*/\n")

	account, _ := p.Stream("account")
	c, _ := account.Column("credit_card")
	if c.Selected {
		t.Error("credit_card should end up excluded")
	}
	if c.PrimaryKey {
		t.Error("excluded column must lose its primary-key hint")
	}
}

func TestResolveUnmatchedRuleWarnings(t *testing.T) {
	p, warnings := mustResolve(t, "salesforce.account\nsalesforce.ghost_table\nothertap.account\n")

	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2: %v", len(warnings), warnings)
	}
	if warnings[0].Line != 2 || warnings[1].Line != 3 {
		t.Errorf("warning lines = %d,%d, want 2,3", warnings[0].Line, warnings[1].Line)
	}

	// Planning still completed
	if s, _ := p.Stream("account"); !s.Selected {
		t.Error("planning must complete despite unmatched rules")
	}
}

func TestResolveZeroCoveragePlan(t *testing.T) {
	p, warnings := mustResolve(t, "hubspot.deals\n")
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if got := p.IncludedStreams(); len(got) != 0 {
		t.Errorf("included = %v, want zero coverage", got)
	}
}

func TestResolveSelectionView(t *testing.T) {
	p, _ := mustResolve(t, "salesforce.account\n!salesforce.account.secret\n")

	sel := p.Selection()
	if _, ok := sel["contact"]; ok {
		t.Error("excluded stream must be absent from selection")
	}
	cols, ok := sel["account"]
	if !ok {
		t.Fatal("account missing from selection")
	}
	if !cols["id"] || cols["secret"] {
		t.Errorf("selection flags wrong: %v", cols)
	}
}

func TestWarningString(t *testing.T) {
	for _, tc := range []struct {
		w    Warning
		want string
	}{
		{Warning{Line: 3, Rule: "hubspot.deals", Msg: "no match"},
			"rules line 3 (hubspot.deals): no match"},
		{Warning{Line: 123456789, Rule: "x.y", Msg: "no match"},
			"rules line 123456789 (x.y): no match"},
	} {
		if got := tc.w.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
