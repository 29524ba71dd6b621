package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"pollhub.org/internal/access"
	"pollhub.org/internal/auth"
	"pollhub.org/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "token":
		runToken(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	default:
		usage()
	}
}

// runToken mints a bearer token signed with POLLHUB_AUTH_SECRET.
func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	name := fs.String("name", "", "Display name claim")
	email := fs.String("email", "", "Email claim")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fail("config: %v", err)
	}
	tokens, err := auth.NewTokenManager(cfg.AuthSecret, auth.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		fail("token manager: %v", err)
	}
	tok, expires, err := tokens.Issue(fs.Arg(0), *name, *email, *ttl)
	if err != nil {
		fail("issue: %v", err)
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
}

// runCheck asks a running access service for a decision.
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	addr := fs.String("addr", envOr("POLLHUB_ACCESS_ADDR", "localhost:9090"), "Access service address")
	identity := fs.String("identity", "", "Identity to check")
	action := fs.String("action", "", "Action, e.g. vote or moderate-poll")
	kind := fs.String("kind", "", "Resource kind for edit and delete (poll or comment)")
	resource := fs.String("resource", "", "Resource id for edit and delete")
	timeout := fs.Duration("timeout", 5*time.Second, "Call timeout")
	_ = fs.Parse(args)
	if *action == "" {
		usage()
	}

	ctx, cancel := access.WithTimeout(context.Background(), *timeout)
	defer cancel()
	client, err := access.Dial(ctx, *addr)
	if err != nil {
		fail("dial %s: %v", *addr, err)
	}
	defer client.Close()

	res, err := client.Check(ctx, access.Request{
		Identity:   *identity,
		Action:     *action,
		Kind:       *kind,
		ResourceID: *resource,
	})
	if err != nil {
		fail("check: %v", err)
	}
	out, _ := json.MarshalIndent(map[string]any{
		"allowed": res.Allowed,
		"reason":  res.Reason,
		"action":  res.Action,
		"role":    res.Role,
	}, "", "  ")
	fmt.Println(string(out))
	if !res.Allowed {
		os.Exit(2)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s token [-name n] [-email e] [-ttl d] <identity>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s check -action a [-identity id] [-kind k -resource id] [-addr host:port]\n", os.Args[0])
	os.Exit(1)
}
