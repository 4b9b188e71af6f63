package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"politodown/lib/configutil"
	"politodown/lib/polito/session"
	"politodown/lib/restyutil"
	"politodown/lib/serviceutil"

	"github.com/spf13/cobra"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// path the session cookies are persisted to, empty disables persistence
	Cookies string `json:"cookies"`
}

var debugHttp *bool

func init() {
	debugHttp = rootCmd.PersistentFlags().Bool(
		"debug-http", false,
		"Dump every http exchange to .dev/resty/politodown.",
	)
}

var rootCmd = &cobra.Command{
	Use:   "politodown",
	Short: "politodown downloads course material and video lessons from the PoliTo student portal.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signin(ctx context.Context) *session.Session {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	if *debugHttp {
		session.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/politodown"))
	}

	s, err := session.New(session.Options{})
	if err != nil {
		serviceutil.Fatal("failed to initialize session", err)
	}

	slog.Info("signing in", "username", cfg.Username)
	err = s.Signin(ctx, cfg.Username, cfg.Password, cfg.Cookies)
	if err != nil {
		serviceutil.Fatal("failed to sign in", err)
	}
	return s
}
