// tokengen 离线签发令牌：签到设备的操作员令牌，或单个报名的二维码身份凭证
package main

import (
	"flag"
	"fmt"
	"os"

	"Attendly/config"
	"Attendly/pkg/token"
)

func main() {
	var (
		operator       string
		registrationID int64
		eventID        int64
	)

	flag.StringVar(&operator, "operator", "", "issue an operator access token for this operator id")
	flag.Int64Var(&registrationID, "registration", 0, "issue an identity token for this registration id")
	flag.Int64Var(&eventID, "event", 0, "event id the registration belongs to (required with -registration)")
	flag.Parse()

	if (operator == "") == (registrationID == 0) {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -operator or -registration is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := &config.Cfg

	if operator != "" {
		if err := token.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		signed, expiresIn, err := token.GenerateOperatorToken(operator)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("operator:   %s\nexpires_in: %ds\ntoken:      %s\n", operator, expiresIn, signed)
		return
	}

	if eventID == 0 {
		fmt.Fprintln(os.Stderr, "Error: -event is required with -registration")
		os.Exit(2)
	}

	// 不校验报名状态，扫码时仍会检查
	issuer := token.NewIdentityIssuer(cfg.IdentityTokenSecret, cfg.IdentityTokenTTL(), cfg.ServiceName)
	signed, claims, err := issuer.Issue(registrationID, eventID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("registration: %d\nevent:        %d\n", registrationID, eventID)
	if claims.ExpiresAt != nil {
		fmt.Printf("expires_at:   %s\n", claims.ExpiresAt.Time.UTC().Format("2006-01-02T15:04:05Z"))
	}
	fmt.Printf("token:        %s\n", signed)
}
