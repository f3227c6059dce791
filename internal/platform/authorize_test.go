package platform

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

type recordingAuthorizer struct {
	state string
	code  string
}

func (a *recordingAuthorizer) AuthURL(state string) string {
	a.state = state
	return "https://auth.example.com/?state=" + state
}

func (a *recordingAuthorizer) Exchange(ctx context.Context, code string) error {
	a.code = code
	return nil
}

func TestAuthorizeConsole(t *testing.T) {
	a := &recordingAuthorizer{}
	var out bytes.Buffer

	if err := AuthorizeConsole(context.Background(), a, strings.NewReader("  4/abc \n"), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.code != "4/abc" {
		t.Fatalf("expected trimmed code, got %q", a.code)
	}
	if a.state == "" || !strings.Contains(out.String(), "state="+a.state) {
		t.Fatalf("expected consent link in output, got %q", out.String())
	}
}

func TestAuthorizeConsoleEmptyCode(t *testing.T) {
	a := &recordingAuthorizer{}
	if err := AuthorizeConsole(context.Background(), a, strings.NewReader("\n"), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for empty code")
	}
	if a.code != "" {
		t.Fatalf("exchange must not run without a code")
	}
}
