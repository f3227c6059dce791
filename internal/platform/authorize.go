package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// AuthorizeConsole runs the authorization code flow on a terminal: it prints
// the consent link and exchanges the code pasted back.
func AuthorizeConsole(ctx context.Context, a Authorizer, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Open the following link in your browser:")
	fmt.Fprintln(out, a.AuthURL(uuid.NewString()))
	fmt.Fprintln(out, "After authorization, paste the code here:")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("empty authorization code")
	}
	return a.Exchange(ctx, code)
}
