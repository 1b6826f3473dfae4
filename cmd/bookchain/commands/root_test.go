package commands

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"bookchain/internal/util"
	"bookchain/pkg/domain"
	"bookchain/pkg/optimistic"
)

func TestRootCommandShowsHelpWithoutSubcommand(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Usage:", "books", "posts", "login"} {
		if !strings.Contains(out, want) {
			t.Fatalf("help output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandContextStampsRequestID(t *testing.T) {
	cmd := &cobra.Command{Use: "books"}
	cmd.SetContext(context.Background())

	ctx := commandContext(cmd)
	id := util.RequestIDFromContext(ctx)
	if id == "" {
		t.Fatalf("expected request id on command context")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://node.test/query", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if got := util.SetRequestID(req); got != id || req.Header.Get(util.RequestIDHeader) != id {
		t.Fatalf("outgoing request id = %q, want %q", got, id)
	}
	if other := util.RequestIDFromContext(commandContext(cmd)); other == id {
		t.Fatalf("each invocation should get its own id")
	}
}

func TestPrintBooksMarksPendingAndFailed(t *testing.T) {
	buf := new(bytes.Buffer)
	printBooks(buf, []optimistic.Item[domain.Book]{
		{Value: domain.Book{ISBN: "ISBN1", Title: "Dune", Author: "Herbert"}, Key: "ISBN1"},
		{Value: domain.Book{ISBN: "ISBN2", Title: "Emma", Author: "Austen"}, Key: "ISBN2", LocalID: "l1", Status: domain.MutationAcked},
		{Value: domain.Book{ISBN: "ISBN3", Title: "Ulysses", Author: "Joyce"}, Key: "ISBN3", LocalID: "l2", Status: domain.MutationFailed, Err: errors.New("rejected")},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %q", buf.String())
	}
	if strings.Contains(lines[1], string(domain.MutationAcked)) {
		t.Fatalf("confirmed row marked pending: %q", lines[1])
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[2]), string(domain.MutationAcked)) {
		t.Fatalf("pending row not marked: %q", lines[2])
	}
	if !strings.Contains(lines[3], "rejected") {
		t.Fatalf("failed row missing error: %q", lines[3])
	}
}

func TestPrintPostsUsesAuthorNameOrKey(t *testing.T) {
	buf := new(bytes.Buffer)
	printPosts(buf, []optimistic.Item[domain.Post]{
		{Value: domain.Post{ID: 3, Content: "hi", User: domain.PostUser{ID: "abcd", Name: "User0042"}}},
		{Value: domain.Post{Content: "draft", User: domain.PostUser{ID: "abcd"}}, LocalID: "l1", Status: domain.MutationInflight},
	})
	out := buf.String()
	if !strings.Contains(out, "User0042") || !strings.Contains(out, "abcd") {
		t.Fatalf("unexpected posts output:\n%s", out)
	}
}
