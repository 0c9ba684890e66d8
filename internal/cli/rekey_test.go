package cli

import (
	"bytes"
	"strings"
	"testing"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/domain"
)

func TestConfirmRequiresExactWord(t *testing.T) {
	cases := map[string]bool{
		"REKEY\n":   true,
		"  REKEY  ": true,
		"rekey\n":   false,
		"yes\n":     false,
		"":          false,
	}
	for input, want := range cases {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(input), &out, 2); got != want {
			t.Fatalf("%q: expected %v, got %v", input, want, got)
		}
		if !strings.Contains(out.String(), "re-keys 2 users") {
			t.Fatalf("prompt missing count: %q", out.String())
		}
	}
}

func TestPrintPlan(t *testing.T) {
	var out bytes.Buffer
	printPlan(&out, app.RekeyPlan{
		Moves:   []app.RekeyMove{{From: "idA", To: "111", User: domain.User{FirstName: "Ana", LastName: "Diaz"}}},
		Skipped: []app.RekeySkip{{UserID: "idB", Reason: "missing national identifier"}},
	})
	got := out.String()
	for _, want := range []string{"1 to move, 1 skipped", "move idA -> 111 (Ana Diaz)", "skip idB: missing national identifier"} {
		if !strings.Contains(got, want) {
			t.Fatalf("plan output missing %q:\n%s", want, got)
		}
	}
}

func TestRekeyRequiresPostgres(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"rekey-users", "--config", "../../config/config.yaml", "--dry-run"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "postgres url not configured") {
		t.Fatalf("expected postgres error, got %v", err)
	}
}
