// Command authgate-demo runs a minimal host app: the full auth surface plus
// one protected page, backed by file-based stores.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	authgate "github.com/trainlog/authgate"
	"github.com/trainlog/authgate/stores"
)

func main() {
	cfg, err := authgate.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.SecretKey == "" {
		log.Fatal("AUTHGATE_SECRET_KEY must be set")
	}

	storagePath := os.Getenv("AUTHGATE_STORAGE_PATH")
	if storagePath == "" {
		storagePath = "./authgate-data"
	}

	var sender authgate.EmailSender = &authgate.ConsoleEmailSender{}
	if cfg.SMTPHost != "" {
		sender = authgate.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort,
			cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	sessions := authgate.NewSCSSessions(cfg.SessionTTL)
	auth := authgate.New(cfg,
		stores.NewFSUserStore(storagePath),
		stores.NewFSTokenStore(storagePath),
		sender,
		sessions,
	)

	r := mux.NewRouter()
	auth.Routes(r)

	r.Handle("/dashboard", auth.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello, user %s\n", authgate.UserIDFromRequest(r))
	})))

	addr := os.Getenv("AUTHGATE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	slog.Info("listening", "addr", addr, "providers", len(auth.Providers))
	log.Fatal(http.ListenAndServe(addr, sessions.Middleware(r)))
}
