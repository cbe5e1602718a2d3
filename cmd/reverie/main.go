package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"reverie/cmd/reverie/chat"
	"reverie/internal/character"
	"reverie/internal/config"
	"reverie/internal/convo"
	"reverie/internal/history"
	"reverie/internal/logging"
	"reverie/internal/quota"
	"reverie/internal/transport"
)

var (
	// Global flags
	configPath    string
	characterName string
	offline       bool
	verbose       bool

	// Logger for the command layer; the running app logs through the
	// category file logger instead, keeping the TUI's stdout clean.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reverie",
	Short: "Reverie - AI character chat in your terminal",
	Long: `Reverie is a terminal chat client for AI characters.

Characters are defined in YAML files and backed by Gemini. Conversations are
persisted locally as an event log, so every session can be picked up where it
left off.

Run without arguments to start chatting.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "List the available characters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := character.LoadRegistry(cfg.CharactersDir)
		if err != nil {
			return fmt.Errorf("failed to load characters: %w", err)
		}
		chars := registry.All()
		if len(chars) == 0 {
			fmt.Println("No characters found in", cfg.CharactersDir)
			return nil
		}
		for _, c := range chars {
			fmt.Printf("%-20s %s\n", c.Name, c.Mode)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(cfg.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()

		records, err := store.ListConversations(50)
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %-20s %s\n", r.LastActiveAt.Format("2006-01-02 15:04"), r.Character, r.Title)
		}
		return nil
	},
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if offline {
		cfg.LLM.Offline = true
	}
	if verbose {
		cfg.Logging.Debug = true
	}
	return cfg, nil
}

func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Storage.DataDir, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
		logger.Warn("file logging disabled", zap.Error(err))
	}
	defer logging.Close()

	store, err := history.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	registry, err := character.LoadRegistry(cfg.CharactersDir)
	if err != nil {
		return fmt.Errorf("failed to load characters: %w", err)
	}
	active := registry.Default()
	if characterName != "" {
		c, ok := registry.Get(characterName)
		if !ok {
			return fmt.Errorf("unknown character %q", characterName)
		}
		active = c
	}

	ctx := context.Background()
	var streamer transport.Streamer
	if cfg.LLM.Offline {
		streamer = &transport.Scripted{}
	} else {
		gem, err := transport.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		streamer = gem
	}

	engine := convo.NewEngine()
	conversationID, err := resumeOrCreate(store, active)
	if err != nil {
		return err
	}
	engine.Activate(convo.Conversation{ID: conversationID, Mode: active.Mode})

	watcher, err := character.NewWatcher(registry)
	if err != nil {
		logger.Warn("character hot-reload disabled", zap.Error(err))
	}

	g, _ := errgroup.WithContext(ctx)
	if watcher != nil {
		g.Go(func() error {
			return watcher.Start()
		})
	}
	g.Go(func() error {
		defer func() {
			if watcher != nil {
				watcher.Stop()
			}
		}()
		return chat.Run(chat.Deps{
			Config:     cfg,
			Engine:     engine,
			Streamer:   streamer,
			History:    store,
			Quota:      quota.NewProvider(store, cfg.Limits.TurnLimit),
			Characters: registry,
			Character:  active,
		})
	})
	return g.Wait()
}

// resumeOrCreate reopens the most recent conversation with the chosen
// character, or starts a fresh one when there is none.
func resumeOrCreate(store *history.Store, char character.Character) (string, error) {
	records, err := store.ListConversations(50)
	if err != nil {
		return "", fmt.Errorf("failed to list conversations: %w", err)
	}
	for _, r := range records {
		if r.Character == char.Name {
			return r.ID, nil
		}
	}
	id := uuid.NewString()
	if err := store.CreateConversation(history.ConversationRecord{
		ID:        id,
		Character: char.Name,
		Mode:      char.Mode,
		Title:     "Chat with " + char.Name,
	}); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&characterName, "character", "C", "", "character to chat with")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use the scripted offline transport")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(charactersCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
