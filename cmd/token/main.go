package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/yieldvault/backend/internal/infrastructure/auth"
	"github.com/yieldvault/backend/internal/infrastructure/config"
)

func main() {
	var (
		subject  string
		clientID string
		scopes   string
		ttl      time.Duration
	)
	flag.StringVar(&subject, "subject", "", "Token subject, e.g. the partner's service name (required)")
	flag.StringVar(&clientID, "client", "", "Bind the token to this client UUID; empty for platform tokens")
	flag.StringVar(&scopes, "scopes", string(auth.ScopeRead), "Comma separated scopes: ledger:read, ledger:write, ledger:admin")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime; zero uses jwt.token_expiration")
	flag.Parse()

	if subject == "" {
		fail("-subject is required")
	}
	client := uuid.Nil
	if clientID != "" {
		id, err := uuid.Parse(clientID)
		if err != nil {
			fail("invalid -client: " + err.Error())
		}
		client = id
	}

	known := []auth.Scope{auth.ScopeRead, auth.ScopeWrite, auth.ScopeAdmin}
	requested := lo.Map(strings.Split(scopes, ","), func(s string, _ int) auth.Scope {
		return auth.Scope(strings.TrimSpace(s))
	})
	if unknown, _ := lo.Difference(requested, known); len(unknown) > 0 {
		fail(fmt.Sprintf("unknown scopes: %v", unknown))
	}

	cfg, err := config.Load()
	if err != nil {
		fail("failed to load configuration: " + err.Error())
	}
	tok, err := auth.NewJWTService(cfg.JWT).Issue(auth.IssueInput{
		Subject:  subject,
		ClientID: client,
		Scopes:   lo.Uniq(requested),
		TTL:      ttl,
	})
	if err != nil {
		fail("failed to issue token: " + err.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(tok)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	flag.Usage()
	os.Exit(2)
}
