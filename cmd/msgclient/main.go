// Command msgclient is a terminal client for the messaging service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"messaging-service/internal/auth"
	"messaging-service/internal/client"
	"messaging-service/internal/logging"
	"messaging-service/internal/models"
)

// Flag variables.
var (
	serverURL, token, userID, deviceID, stateDir, logLevel string
	ackTimeout                                             time.Duration
)

var logger *slog.Logger

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "msgclient",
	Short:         "Terminal client for the rental marketplace messaging service.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(os.Stderr, logLevel)
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List conversations, pinned first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archived, _ := cmd.Flags().GetBool("archived")
		ctrl, err := startController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		if archived {
			if err := ctrl.ChangeView(cmd.Context(), models.ViewArchived); err != nil {
				return err
			}
		}
		for _, item := range ctrl.State().Conversations {
			printItem(item)
		}
		return nil
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread <peer-id>",
	Short: "Print the conversation with a peer and mark it read.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := startController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		if err := ctrl.OpenThread(cmd.Context(), args[0]); err != nil {
			return err
		}
		for _, msg := range ctrl.State().Messages {
			printMessage(msg.Message)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <peer-id> <message>",
	Short: "Send a message, over the live channel when it is reachable.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ctrl, err := startController(ctx, true)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		if err := ctrl.OpenThread(ctx, args[0]); err != nil {
			return err
		}
		ctrl.SetDraft(strings.Join(args[1:], " "))
		msg, err := ctrl.Send(ctx)
		if err != nil {
			return err
		}
		fmt.Println(msg.ID)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and print incoming notifications until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl, err := startController(ctx, true, func(cfg *client.Config) {
			cfg.OnNotification = func(n models.Notification) {
				fmt.Printf("%s: %s\n", n.SenderDisplayName, n.Message)
			}
		})
		if err != nil {
			return err
		}
		defer ctrl.Close()
		<-ctx.Done()
		return nil
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <conversation-id>",
	Short: "Pin or unpin a conversation on this device.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := startController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		return ctrl.TogglePin(args[0])
	},
}

// visibilityCmd builds the archive, restore and delete commands.
func visibilityCmd(use, short string, apply func(*client.Controller, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <conversation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := startController(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer ctrl.Close()
			return apply(ctrl, cmd.Context(), args[0])
		},
	}
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a development token signed with AUTH_TOKEN_KEY.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		name, _ := cmd.Flags().GetString("name")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		codec, err := auth.NewCodec(key, ttl)
		if err != nil {
			return err
		}
		tok, err := codec.Issue(auth.Identity{UserID: args[0], DisplayName: name})
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

// init is the initialization function for Cobra which defines flags.
func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&serverURL, "server", "s", envOr("MSG_SERVER", "http://localhost:8083"),
		"Base URL of the messaging service.")
	pf.StringVarP(&token, "token", "t", os.Getenv("MSG_TOKEN"),
		"Bearer token. Defaults to $MSG_TOKEN.")
	pf.StringVarP(&userID, "user", "u", os.Getenv("MSG_USER"),
		"User id the token was issued for. Defaults to $MSG_USER.")
	pf.StringVarP(&deviceID, "device", "d", defaultDevice(),
		"Device id pins are stored under.")
	pf.StringVar(&stateDir, "state-dir", defaultStateDir(),
		"Directory for device-local state.")
	pf.StringVarP(&logLevel, "log-level", "v", "warn",
		"Log level: debug, info, warn or error.")
	pf.DurationVar(&ackTimeout, "ack-timeout", 5*time.Second,
		"How long to wait for the live channel to acknowledge a send.")

	inboxCmd.Flags().Bool("archived", false, "List archived conversations instead.")

	tokenCmd.Flags().String("key", os.Getenv("AUTH_TOKEN_KEY"), "32-byte token key. Defaults to $AUTH_TOKEN_KEY.")
	tokenCmd.Flags().String("name", "", "Display name carried in the token.")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime.")

	rootCmd.AddCommand(inboxCmd, threadCmd, sendCmd, watchCmd, pinCmd, tokenCmd,
		visibilityCmd("archive", "Move a conversation out of the inbox.", (*client.Controller).Archive),
		visibilityCmd("restore", "Move an archived conversation back to the inbox.", (*client.Controller).Restore),
		visibilityCmd("delete", "Remove a conversation from every view.", (*client.Controller).DeletePermanently),
	)
}

func startController(ctx context.Context, live bool, mutate ...func(*client.Config)) (*client.Controller, error) {
	if token == "" || userID == "" {
		return nil, fmt.Errorf("--token and --user are required")
	}
	cfg := client.Config{
		UserID:     userID,
		API:        client.NewRESTClient(serverURL, token),
		Pins:       client.NewFilePinStore(stateDir, deviceID),
		AckTimeout: ackTimeout,
		Logger:     logger,
	}
	if live {
		cfg.Dial = func(ctx context.Context) (client.Live, error) {
			return client.DialLive(ctx, liveURL(serverURL), token)
		}
	}
	for _, m := range mutate {
		m(&cfg)
	}
	ctrl := client.New(cfg)
	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}
	return ctrl, nil
}

func liveURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

func printItem(item client.Item) {
	mark := " "
	if item.Pinned {
		mark = "*"
	}
	peer, _ := item.Peer(userID)
	name := peer.DisplayName
	if name == "" {
		name = peer.ID
	}
	preview := ""
	if item.LastMessage != nil {
		preview = item.LastMessage.Body
	}
	fmt.Printf("%s %s  %-20s %3d  %s\n", mark, item.ID, name, item.UnreadCount, preview)
}

func printMessage(msg models.Message) {
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("Jan 2 15:04"), msg.SenderID, msg.Body)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func defaultDevice() string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "default"
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".msgclient"
	}
	return filepath.Join(dir, "msgclient")
}
