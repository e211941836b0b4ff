package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/deskbase/chatd/internal/daemon"
	"github.com/deskbase/chatd/internal/lock"
	"github.com/deskbase/chatd/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	userFlag := flag.String("user", "", "identity user id (overrides config)")
	nameFlag := flag.String("name", "", "identity display name (overrides config)")
	tokenFlag := flag.String("token", "", "relay auth token (overrides config)")
	listenFlag := flag.String("listen", "", "api listen address (overrides config)")
	flag.Parse()

	// Optional .env alongside the working directory; absence is fine.
	_ = godotenv.Load()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if pid, held := lock.Check(profile.Dir(profileName)); held {
		fmt.Fprintf(os.Stderr, "error: daemon already running for profile %q (pid %d)\n", profileName, pid)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			UserID:      *userFlag,
			UserName:    *nameFlag,
			Token:       *tokenFlag,
			ListenAddr:  *listenFlag,
		}),
	)

	app.Run()
}
