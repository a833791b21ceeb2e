package activity

import "testing"

func TestValidateEventType(t *testing.T) {
	valid := []string{"contact.created", "user.role_changed", "email_account.deleted", "a.b.c"}
	for _, v := range valid {
		if err := ValidateEventType(v); err != nil {
			t.Fatalf("%q should be valid: %v", v, err)
		}
	}
	invalid := []string{"", "contact", "contact.", ".created", "Contact.created", "contact..created", "contact.cre ated"}
	for _, v := range invalid {
		if err := ValidateEventType(v); err == nil {
			t.Fatalf("%q should be invalid", v)
		}
	}
}

func TestMatchTypePattern(t *testing.T) {
	cases := []struct {
		pattern, typ string
		want         bool
	}{
		{"contact.created", "contact.created", true},
		{"contact.created", "contact.updated", false},
		{"contact.*", "contact.created", true},
		{"contact.*", "draft.created", false},
		{"*.deleted", "draft.deleted", true},
		{"*.deleted", "draft.created", false},
		{">", "anything.at.all", true},
		{"user.>", "user.role_changed", true},
		{"user.>", "user", false},
		{"contact.*", "contact.a.b", false},
	}
	for _, c := range cases {
		if got := matchTypePattern(c.pattern, c.typ); got != c.want {
			t.Fatalf("match(%q, %q) = %v, want %v", c.pattern, c.typ, got, c.want)
		}
	}
}

func TestFilterCEL(t *testing.T) {
	f, err := NewFilter(nil, `type == "message.updated" && json.unread == true`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	match := EventRecord{Type: "message.updated", Payload: []byte(`{"unread":true}`)}
	miss := EventRecord{Type: "message.updated", Payload: []byte(`{"unread":false}`)}
	if !f.Match(match) {
		t.Fatalf("expected match")
	}
	if f.Match(miss) {
		t.Fatalf("expected miss")
	}
}

func TestFilterCELErrorFailsClosed(t *testing.T) {
	f, err := NewFilter(nil, `json.missing.deep == 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if f.Match(EventRecord{Type: "contact.created", Payload: []byte(`{}`)}) {
		t.Fatalf("eval error should not match")
	}
}

func TestFilterInvalidExpression(t *testing.T) {
	if _, err := NewFilter(nil, `type ==`); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestNilFilterMatchesAll(t *testing.T) {
	f, err := NewFilter(nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != nil {
		t.Fatalf("empty inputs should yield nil filter")
	}
	if !f.Match(EventRecord{Type: "contact.created"}) {
		t.Fatalf("nil filter must match everything")
	}
}
