// get5panel - competitive match panel for get5 game servers
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"get5panel/internal/api"
	"get5panel/internal/assets"
	"get5panel/internal/auth"
	"get5panel/internal/config"
	"get5panel/internal/domain"
	"get5panel/internal/match"
	"get5panel/internal/rcon"
	"get5panel/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/get5panel/config.yml"

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "logos":
		cmdLogos(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "version":
		fmt.Printf("get5panel %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: get5panel <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                         Start the match panel server")
	fmt.Println("  user add [--admin] <username> Add a panel user (prompts for password)")
	fmt.Println("  user remove <username>        Remove a user")
	fmt.Println("  user list                     List all users")
	fmt.Println("  user reset <username>         Reset a user's password")
	fmt.Println("  user admin <username>         Toggle admin status for a user")
	fmt.Println("  logos list                    List registered team logos")
	fmt.Println("  logos import <tag> <file>     Import and resize a logo image")
	fmt.Println("  check <host:port> <password>  Test RCON connectivity to a game server")
	fmt.Println("  version                       Show version")
	fmt.Println("  help                          Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/get5panel/config.yml)")
}

// cmdServe starts the panel server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("get5panel %s starting...", version)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	logos, err := assets.LoadLogos(cfg.Panel.LogoDir)
	if err != nil {
		log.Fatalf("Failed to load logos: %v", err)
	}
	log.Printf("Loaded %d team logos", len(logos.Tags()))

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}

	matchService := match.NewService(store, rcon.NewClient(), cfg)
	router := api.NewRouter(store, matchService, authService, cfg, logos)
	router.Run()

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		log.Printf("Game servers must reach this panel at %s", cfg.Server.PublicURL)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}

func openCLIStore(args []string) (*config.Config, *storage.Store, []string) {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		errColor.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	return cfg, store, fs.Args()
}

func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: get5panel user <add|remove|list|reset|admin> [args]")
		os.Exit(1)
	}

	sub := args[0]
	_, store, rest := openCLIStore(args[1:])
	defer store.Close()

	var err error
	switch sub {
	case "add":
		err = cmdUserAdd(store, rest)
	case "remove":
		err = cmdUserRemove(store, rest)
	case "list":
		err = cmdUserList(store)
	case "reset":
		err = cmdUserReset(store, rest)
	case "admin":
		err = cmdUserAdmin(store, rest)
	default:
		err = fmt.Errorf("unknown user subcommand: %s", sub)
	}
	if err != nil {
		errColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdUserAdd(store *storage.Store, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	admin := fs.Bool("admin", false, "grant admin access")
	steamID := fs.String("steam-id", "", "steam64 id for the account")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("username is required")
	}
	username := fs.Arg(0)

	if _, err := store.GetUserByUsername(username); err == nil {
		return fmt.Errorf("user %s already exists", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(&domain.User{
		Username:     username,
		SteamID:      *steamID,
		PasswordHash: hash,
		Admin:        *admin,
	}); err != nil {
		return err
	}
	okColor.Printf("User %s created\n", username)
	return nil
}

func cmdUserRemove(store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username is required")
	}
	user, err := store.GetUserByUsername(args[0])
	if err != nil {
		return fmt.Errorf("user %s not found", args[0])
	}
	if err := store.DeleteUser(user.ID); err != nil {
		return err
	}
	okColor.Printf("User %s removed\n", args[0])
	return nil
}

func cmdUserList(store *storage.Store) error {
	users, err := store.ListUsers()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tADMIN\tSTEAM ID\tLAST LOGIN")
	for _, u := range users {
		admin := ""
		if u.Admin {
			admin = "yes"
		}
		lastLogin := "never"
		if u.LastLogin != nil {
			lastLogin = u.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, admin, u.SteamID, lastLogin)
	}
	return w.Flush()
}

func cmdUserReset(store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username is required")
	}
	user, err := store.GetUserByUsername(args[0])
	if err != nil {
		return fmt.Errorf("user %s not found", args[0])
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := store.UpdateUserPassword(user.ID, hash); err != nil {
		return err
	}
	okColor.Printf("Password updated for %s\n", args[0])
	return nil
}

func cmdUserAdmin(store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username is required")
	}
	user, err := store.GetUserByUsername(args[0])
	if err != nil {
		return fmt.Errorf("user %s not found", args[0])
	}
	if err := store.SetUserAdmin(user.ID, !user.Admin); err != nil {
		return err
	}
	if user.Admin {
		warnColor.Printf("Admin access revoked for %s\n", args[0])
	} else {
		okColor.Printf("Admin access granted to %s\n", args[0])
	}
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		// Not a terminal; read a line instead (useful for scripts).
		reader := bufio.NewReader(os.Stdin)
		line, rerr := reader.ReadString('\n')
		if rerr != nil {
			return "", fmt.Errorf("reading password: %w", rerr)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(password) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	return string(password), nil
}

func cmdLogos(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: get5panel logos <list|import> [args]")
		os.Exit(1)
	}

	sub := args[0]
	cfg, store, rest := openCLIStore(args[1:])
	store.Close()

	switch sub {
	case "list":
		reg, err := assets.LoadLogos(cfg.Panel.LogoDir)
		if err != nil {
			errColor.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, tag := range reg.Tags() {
			fmt.Println(tag)
		}
	case "import":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: get5panel logos import <tag> <file>")
			os.Exit(1)
		}
		if err := assets.ImportLogo(cfg.Panel.LogoDir, rest[0], rest[1]); err != nil {
			errColor.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		okColor.Printf("Logo %s imported\n", rest[0])
	default:
		fmt.Fprintf(os.Stderr, "Unknown logos subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// cmdCheck tests RCON connectivity to a game server without touching
// the database.
func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: get5panel check <host:port> <rcon password>")
		os.Exit(1)
	}

	host, portStr, found := strings.Cut(fs.Arg(0), ":")
	if !found {
		errColor.Fprintln(os.Stderr, "Address must be host:port")
		os.Exit(1)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		errColor.Fprintf(os.Stderr, "Bad port: %v\n", err)
		os.Exit(1)
	}

	client := rcon.NewClient()
	resp, err := client.Send(host, port, fs.Arg(1), "status")
	if err != nil {
		errColor.Fprintf(os.Stderr, "RCON check failed: %v\n", err)
		os.Exit(1)
	}
	okColor.Println("RCON connection OK")
	fmt.Println(resp)
}
