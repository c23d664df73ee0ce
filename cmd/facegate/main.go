package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facegate/facegate/pkg/auth"
	"github.com/facegate/facegate/pkg/capability"
	"github.com/facegate/facegate/pkg/config"
	"github.com/facegate/facegate/pkg/liveness"
	"github.com/facegate/facegate/pkg/logging"
	"github.com/facegate/facegate/pkg/notify"
	"github.com/facegate/facegate/pkg/session"
	"github.com/facegate/facegate/pkg/signature"
	"github.com/facegate/facegate/pkg/store"
)

const version = "0.1.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command
)

func init() {
	commands = map[string]*Command{
		"register": {
			Name:        "register",
			Description: "Register a new account with a face image",
			Usage:       "facegate register <email> <first-name> <last-name> <image-file>",
			Run:         cmdRegister,
		},
		"login": {
			Name:        "login",
			Description: "Log in with password and face image",
			Usage:       "facegate login <email> <image-file>",
			Run:         cmdLogin,
		},
		"check-liveness": {
			Name:        "check-liveness",
			Description: "Check whether an image passes the liveness gate",
			Usage:       "facegate check-liveness <image-file>",
			Run:         cmdCheckLiveness,
		},
		"download-models": {
			Name:        "download-models",
			Description: "Download the face recognition model files",
			Usage:       "facegate download-models [directory]",
			Run:         cmdDownloadModels,
		},
		"remove": {
			Name:        "remove",
			Description: "Remove an account and its face data",
			Usage:       "facegate remove <email>",
			Run:         cmdRemove,
		},
		"list": {
			Name:        "list",
			Description: "List registered accounts",
			Usage:       "facegate list",
			Run:         cmdList,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "facegate config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "facegate version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "facegate help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()

	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if *debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("FaceGate v%s starting", version)
	logging.Debugf("Config loaded, storage dir: %s", cfg.Storage.DataDir)

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("FaceGate - Two-Factor Face Authentication")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: facegate [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range []string{"register", "login", "check-liveness", "download-models", "remove", "list", "config", "version", "help"} {
		cmd := commands[name]
		fmt.Printf("  %-15s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  facegate register alice@example.com Alice Smith face.jpg")
	fmt.Println("  facegate login alice@example.com face.jpg")
	fmt.Println("  facegate check-liveness face.jpg")
	fmt.Println("\nRun 'facegate help <command>' for more information on a command.")
}

// buildService wires the full authentication stack from the loaded
// config. The returned cleanup stops the pending registry sweep and
// releases the recognition models.
func buildService() (*auth.Service, func(), error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, fmt.Errorf("failed to create directories: %w", err)
	}

	identities, err := store.NewFileIdentityStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	signatures, err := store.NewFileSignatureStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open signature store: %w", err)
	}

	dlib := capability.NewDlib(cfg.Recognition.ModelPath)

	key, err := loadSigningKey(cfg.Session.SigningKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	registry := session.NewRegistry(time.Duration(cfg.Session.PendingTTL) * time.Second)

	var notifier notify.Notifier
	switch cfg.Notifier.Mode {
	case "resend":
		notifier = notify.NewEmailNotifier(cfg.Notifier.FromAddress)
	default:
		notifier = notify.LogNotifier{}
	}

	svc := auth.NewService(auth.Deps{
		Identities: identities,
		Signatures: signatures,
		Liveness: liveness.NewDetector(dlib, liveness.Config{
			MinLandmarks: cfg.Liveness.MinLandmarks,
			MinSpread:    cfg.Liveness.MinSpread,
		}),
		Extractor: signature.NewExtractor(dlib),
		Matcher:   signature.NewMatcher(cfg.Recognition.MatchThreshold),
		Pending:   registry,
		Tokens:    session.NewJWTIssuer(key, time.Duration(cfg.Session.TokenTTL)*time.Minute),
		Notifier:  notifier,
	})

	cleanup := func() {
		registry.Close()
		if err := dlib.Close(); err != nil {
			logging.WithError(err).Warn("failed to close recognizer")
		}
	}
	return svc, cleanup, nil
}

// loadSigningKey reads the token signing key, generating one on first
// use.
func loadSigningKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil && len(key) >= 32 {
		return key, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// framePayload reads an image file and encodes it the way a capture
// client would submit it.
func framePayload(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image file: %w", err)
	}
	mime := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Command implementations

func cmdRegister(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("arguments required\nUsage: facegate register <email> <first-name> <last-name> <image-file>")
	}
	email, firstName, lastName, imageFile := args[0], args[1], args[2], args[3]

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	frame, err := framePayload(imageFile)
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	logging.Infof("Starting registration for: %s", email)

	result, err := svc.Register(auth.RegisterRequest{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  password,
		Frame:     frame,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Registered '%s' with face enrollment.\n", result.Email)
	return nil
}

func cmdLogin(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("arguments required\nUsage: facegate login <email> <image-file>")
	}
	email, imageFile := args[0], args[1]

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	frame, err := framePayload(imageFile)
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	logging.Infof("Login attempt for: %s", email)

	pw, err := svc.SubmitPassword(auth.PasswordRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	fmt.Println("Password accepted, verifying face...")

	face, err := svc.SubmitFace(auth.FaceRequest{Handle: pw.Handle, Frame: frame})
	if err != nil {
		return err
	}

	fmt.Printf("Login successful for '%s'.\n", face.Identity)
	fmt.Printf("Token: %s\n", face.Token)
	return nil
}

func cmdCheckLiveness(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("image file required\nUsage: facegate check-liveness <image-file>")
	}

	frame, err := framePayload(args[0])
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := svc.CheckLiveness(auth.LivenessRequest{Frame: frame})
	if err != nil {
		return err
	}

	if result.Live {
		fmt.Printf("Live capture (%d landmarks detected).\n", result.Landmarks)
	} else {
		fmt.Println("Not a live capture.")
	}
	return nil
}

func cmdRemove(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("email required\nUsage: facegate remove <email>")
	}
	email := args[0]

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	identities, err := store.NewFileIdentityStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return fmt.Errorf("failed to open identity store: %w", err)
	}
	signatures, err := store.NewFileSignatureStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return fmt.Errorf("failed to open signature store: %w", err)
	}

	logging.Infof("Removing account: %s", email)

	if err := identities.Delete(email); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	if err := signatures.Delete(email); err != nil && !errors.Is(err, store.ErrNoSignature) {
		return fmt.Errorf("failed to remove face data: %w", err)
	}

	fmt.Printf("Account '%s' has been removed.\n", email)
	return nil
}

func cmdList(args []string) error {
	logging.Debug("Listing registered accounts")

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	identities, err := store.NewFileIdentityStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return fmt.Errorf("failed to open identity store: %w", err)
	}
	signatures, err := store.NewFileSignatureStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return fmt.Errorf("failed to open signature store: %w", err)
	}

	emails, err := identities.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(emails) == 0 {
		fmt.Println("No accounts registered.")
		return nil
	}

	fmt.Println("Registered accounts:")
	for _, email := range emails {
		name := ""
		if identity, err := identities.Find(email); err == nil {
			name = identity.FullName()
		}
		enrolled := "no face data"
		if signatures.Exists(email) {
			enrolled = "face enrolled"
		}
		fmt.Printf("  - %s (%s, %s)\n", email, name, enrolled)
	}
	fmt.Printf("\nTotal: %d account(s)\n", len(emails))

	return nil
}

func cmdConfig(args []string) error {
	logging.Debug("Showing configuration")

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Recognition]")
	fmt.Printf("  Model Path:       %s\n", cfg.Recognition.ModelPath)
	fmt.Printf("  Match Threshold:  %.2f\n", cfg.Recognition.MatchThreshold)
	fmt.Println()
	fmt.Println("[Liveness]")
	fmt.Printf("  Min Landmarks:    %d\n", cfg.Liveness.MinLandmarks)
	fmt.Printf("  Min Spread:       %.3f\n", cfg.Liveness.MinSpread)
	fmt.Println()
	fmt.Println("[Session]")
	fmt.Printf("  Pending TTL:      %d seconds\n", cfg.Session.PendingTTL)
	fmt.Printf("  Token TTL:        %d minutes\n", cfg.Session.TokenTTL)
	fmt.Printf("  Signing Key:      %s\n", cfg.Session.SigningKeyFile)
	fmt.Println()
	fmt.Println("[Storage]")
	fmt.Printf("  Data Dir:         %s\n", cfg.Storage.DataDir)
	fmt.Printf("  Encryption:       %t\n", cfg.Storage.EncryptionEnabled)
	fmt.Println()
	fmt.Println("[Notifier]")
	fmt.Printf("  Mode:             %s\n", cfg.Notifier.Mode)
	fmt.Printf("  From Address:     %s\n", cfg.Notifier.FromAddress)
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:            %s\n", cfg.Logging.Level)
	fmt.Printf("  File:             %s\n", cfg.Logging.File)

	return nil
}

func cmdVersion(args []string) error {
	fmt.Printf("FaceGate v%s\n", version)
	fmt.Println("Two-Factor Face Authentication")
	fmt.Println()
	fmt.Println("Build Information:")
	fmt.Printf("  Go version: %s\n", "1.21+")
	fmt.Printf("  Platform:   linux/amd64\n")
	return nil
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf("Command: %s\n", cmd.Name)
	fmt.Printf("Description: %s\n", cmd.Description)
	fmt.Printf("Usage: %s\n", cmd.Usage)

	switch cmdName {
	case "register":
		fmt.Println("\nRegistration:")
		fmt.Println("  1. Provide your email, name, and a face photo (JPEG or PNG)")
		fmt.Println("  2. You will be prompted for a password")
		fmt.Println("  3. The photo must contain exactly one live face")
		fmt.Println("  4. The face signature is encrypted and stored locally")
	case "login":
		fmt.Println("\nLogin:")
		fmt.Println("  1. Provide your email and a fresh face photo")
		fmt.Println("  2. You will be prompted for your password")
		fmt.Println("  3. Both the password and the face must verify")
	case "check-liveness":
		fmt.Println("\nLiveness Check:")
		fmt.Println("  Probes a photo against the liveness gate without")
		fmt.Println("  touching any account state.")
	case "download-models":
		fmt.Println("\nModel Download:")
		fmt.Println("  Fetches the dlib model files from dlib.net into the")
		fmt.Println("  configured model directory (or the one given).")
		fmt.Println("  Required once before the first register or login.")
	case "config":
		fmt.Println("\nConfiguration Locations:")
		fmt.Println("  System: /etc/facegate/facegate.yaml")
		fmt.Println("  User:   ~/.config/facegate/facegate.yaml")
		fmt.Println("\nUse -config flag to specify a custom config file.")
	}

	return nil
}
