// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	stderrors "errors"
	"testing"
)

func TestKindRoundTrip(t *testing.T) {
	err := Invalid("rule %q missing action", "zoom")
	kind, ok := GetKind(err)
	if !ok {
		t.Fatal("expected a netpolicy error")
	}
	if kind != KindInvalid {
		t.Errorf("expected KindInvalid, got %v", kind)
	}
}

func TestWrapPreservesChain(t *testing.T) {
	base := stderrors.New("boom")
	wrapped := Wrap(KindDecode, base, "ss base64 decode failed")
	if !Is(wrapped, base) {
		t.Error("expected Is to find the underlying error")
	}
	var e *Error
	if !As(wrapped, &e) {
		t.Fatal("expected As to succeed")
	}
	if e.Kind != KindDecode {
		t.Errorf("expected KindDecode, got %v", e.Kind)
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(KindInvalid, nil, "unused") != nil {
		t.Error("expected Wrap(nil) to return nil")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindYaml:      "yaml",
		KindInvalid:   "invalid",
		KindInvalidURL: "invalid_url",
		KindDecode:    "decode",
		KindParse:     "parse",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
