// ABOUTME: Entry point for the gather server and CLI
// ABOUTME: Routes to the web server or calendar sync commands based on arguments
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"github.com/harperreed/gather/db"
	"github.com/harperreed/gather/invite"
	gathersync "github.com/harperreed/gather/sync"
	"github.com/harperreed/gather/web"
)

const version = "0.1.0"

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/gather/gather.db)")
	addr := flag.String("addr", "", "Listen address for serve (default: GATHER_ADDR or localhost:8080)")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("gather version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	database, err := db.OpenDatabase(getDatabasePath(*dbPath))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	oauthConfig := gathersync.NewOAuthConfig()
	provider := gathersync.NewGoogleProvider(oauthConfig)
	engine := gathersync.NewEngine(database, provider)
	invites := invite.NewService(database)

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "serve":
		listenAddr := *addr
		if listenAddr == "" {
			listenAddr = os.Getenv("GATHER_ADDR")
		}
		if listenAddr == "" {
			listenAddr = "localhost:8080"
		}

		server := web.NewServer(database, engine, invites, provider, oauthConfig, web.HeaderSessionStore{})
		if err := server.Start(listenAddr); err != nil {
			log.Fatalf("Web server failed: %v", err)
		}

	case "connect":
		if len(commandArgs) != 1 {
			fmt.Println("Usage: gather connect <user-id>")
			os.Exit(1)
		}
		if err := connectCommand(engine, oauthConfig, provider, commandArgs[0]); err != nil {
			log.Fatalf("Connect failed: %v", err)
		}

	case "sync":
		if len(commandArgs) != 1 {
			fmt.Println("Usage: gather sync <user-id>")
			os.Exit(1)
		}
		result := engine.Sync(context.Background(), commandArgs[0])
		if !result.Success {
			log.Fatalf("Sync failed: %v", result.Err)
		}
		fmt.Printf("✓ Synced %d events from %d calendars\n", result.EventCount, result.CalendarsCount)

	case "disconnect":
		if len(commandArgs) != 1 {
			fmt.Println("Usage: gather disconnect <user-id>")
			os.Exit(1)
		}
		if err := engine.Disconnect(context.Background(), commandArgs[0]); err != nil {
			log.Fatalf("Disconnect failed: %v", err)
		}
		fmt.Println("✓ Google Calendar disconnected (cached events retained)")

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// connectCommand runs the loopback OAuth flow: serve the callback
// locally, send the user to Google, then store the exchanged tokens.
func connectCommand(engine *gathersync.Engine, config *oauth2.Config, provider gathersync.Provider, userID string) error {
	if err := gathersync.ValidateOAuthConfig(config); err != nil {
		return err
	}

	ctx := context.Background()

	bundleChan := make(chan *gathersync.TokenBundle)
	errChan := make(chan error)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/calendar/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			return
		}

		bundle, err := provider.ExchangeCode(ctx, code)
		if err != nil {
			errChan <- err
			return
		}

		bundleChan <- bundle
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	authURL := gathersync.AuthCodeURL(config, userID)

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)

	_ = openBrowser(authURL)

	select {
	case bundle := <-bundleChan:
		_ = server.Shutdown(ctx)

		if err := engine.Connect(ctx, userID, bundle); err != nil {
			return err
		}

		fmt.Printf("\n✓ Google Calendar connected for %s\n", userID)
		fmt.Println("Run 'gather sync' any time to refresh the mirrored events.")
		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

// openBrowser attempts to open the URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler"}
	default:
		cmd = "xdg-open"
	}

	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}

func getDatabasePath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(xdg.DataHome, "gather", "gather.db")
}

func printUsage() {
	fmt.Println("gather - invite-only events with a Google Calendar mirror")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gather serve                 Start the JSON API server")
	fmt.Println("  gather connect <user-id>     Connect Google Calendar via browser OAuth")
	fmt.Println("  gather sync <user-id>        Run one calendar sync pass")
	fmt.Println("  gather disconnect <user-id>  Disconnect Google Calendar")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -db-path <path>  Database path (default: ~/.local/share/gather/gather.db)")
	fmt.Println("  -addr <addr>     Listen address for serve (default: localhost:8080)")
	fmt.Println("  -version         Show version and exit")
}
