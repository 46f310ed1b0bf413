package notification

import (
	"errors"
	"strings"
	"testing"
)

func TestParseType(t *testing.T) {
	for _, typ := range Types {
		got, err := ParseType(string(typ))
		if err != nil || got != typ {
			t.Errorf("ParseType(%q) = %q, %v", typ, got, err)
		}
	}
	for _, bad := range []string{"", "like", "MENTION", " LIKE"} {
		if _, err := ParseType(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseType(%q) err = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestInputValidate(t *testing.T) {
	valid := Input{RecipientID: "u1", SenderID: "u2", Type: TypeLike, Message: "ana liked your post", Link: "/posts/p1"}

	tests := []struct {
		name   string
		mutate func(*Input)
		ok     bool
	}{
		{name: "valid", mutate: func(*Input) {}, ok: true},
		{name: "no sender", mutate: func(in *Input) { in.SenderID = "" }, ok: true},
		{name: "missing recipient", mutate: func(in *Input) { in.RecipientID = " " }},
		{name: "unknown type", mutate: func(in *Input) { in.Type = "POKE" }},
		{name: "empty message", mutate: func(in *Input) { in.Message = "" }},
		{name: "long message", mutate: func(in *Input) { in.Message = strings.Repeat("é", maxMessageChars+1) }},
		{name: "long link", mutate: func(in *Input) { in.Link = "/" + strings.Repeat("a", maxLinkChars) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := in.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}
