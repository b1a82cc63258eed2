package messages_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/messages"
)

const destinations = `
default: "bpmn.{app}.{name}"
destinations:
  payment: billing.inbox
  loans:payment: loans.payments
`

func TestResolver_Resolve(t *testing.T) {
	r, err := messages.ParseResolver([]byte(destinations))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tests := []struct {
		name string
		app  string
		msg  string
		want string
	}{
		{name: "app route wins", app: "loans", msg: "payment", want: "loans.payments"},
		{name: "name route", app: "cards", msg: "payment", want: "billing.inbox"},
		{name: "template", app: "cards", msg: "refund", want: "bpmn.cards.refund"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.app, tt.msg); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_Default(t *testing.T) {
	if got := messages.NewResolver().Resolve("loans", "refund"); got != "loans.refund" {
		t.Errorf("got %q", got)
	}
}

func TestParseResolver_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty destination", data: "destinations:\n  payment: \"\"\n"},
		{name: "not yaml", data: "destinations: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := messages.ParseResolver([]byte(tt.data))
			if !errors.Is(err, procview.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestLoadResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "destinations.yaml")
	if err := os.WriteFile(path, []byte(destinations), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := messages.LoadResolver(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := r.Resolve("loans", "payment"); got != "loans.payments" {
		t.Errorf("got %q", got)
	}

	if _, err := messages.LoadResolver(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
