// Command token mints a service or reviewer bearer token signed with the
// configured SERVICE_TOKEN_KEY. It is meant for local runs and the e2e suite.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "kycgate/internal/jwt_token"
	"kycgate/internal/platform/config"
	"kycgate/internal/platform/middleware"
)

func main() {
	subject := flag.String("subject", "onboarding-web", "token subject (calling service or reviewer id)")
	role := flag.String("role", middleware.RoleService, "service or reviewer")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*subject, *role, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(subject, role string, ttl time.Duration) error {
	if role != middleware.RoleService && role != middleware.RoleReviewer {
		return fmt.Errorf("unknown role %q", role)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tokens := jwttoken.NewJWTService(cfg.Server.ServiceTokenKey, cfg.Server.TokenIssuer, cfg.Server.TokenAudience)
	token, err := tokens.GenerateServiceToken(subject, role, ttl)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	fmt.Println(token)
	return nil
}
