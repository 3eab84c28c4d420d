package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/mirror"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// env is shared by all subcommands once the root has loaded config.
type env struct {
	cfg    cliConfig
	client *mirror.Client
	sync   *mirror.Sync
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	v := newViper()
	e := &env{}
	var (
		configFile string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "draftctl",
		Short:         "Manage drafts on a secret-ai-writer server",
		Long:          `draftctl saves, lists and exports drafts. When the server is unreachable, drafts are kept in a local mirror.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfigFile(v, configFile); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			e.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
			e.cfg = cfg

			e.client, err = mirror.NewClient(mirror.ClientConfig{
				BaseURL:    cfg.ServerURL,
				HTTPClient: &http.Client{Timeout: cfg.Timeout},
				Logger:     e.logger,
			})
			if err != nil {
				return err
			}
			store, err := storage.NewDraftStore(cfg.MirrorDir, e.logger)
			if err != nil {
				return fmt.Errorf("opening mirror: %w", err)
			}
			e.sync = mirror.NewSync(e.client, store, cfg.UserAddress, e.logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default $HOME/.draftctl.yaml)")
	flags.String("server-url", "", "server base URL")
	flags.String("user", "", "user address")
	flags.String("mirror-dir", "", "local mirror directory")
	flags.Duration("timeout", 0, "request timeout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	bindFlag(v, "server_url", flags.Lookup("server-url"))
	bindFlag(v, "user_address", flags.Lookup("user"))
	bindFlag(v, "mirror_dir", flags.Lookup("mirror-dir"))
	bindFlag(v, "timeout", flags.Lookup("timeout"))

	root.AddCommand(
		newSaveCmd(e),
		newListCmd(e),
		newLatestCmd(e),
		newDeleteCmd(e),
		newExportCmd(e),
		newImportCmd(e),
		newGenerateCmd(e),
		newEnhanceCmd(e),
		newWatchCmd(e),
	)
	return root
}

// bindFlag lets an explicitly set flag override config file and environment.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func noticeTo(cmd *cobra.Command, s *mirror.Sync) {
	if n := s.Notice(); n != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", n)
	}
}

func newSaveCmd(e *env) *cobra.Command {
	var (
		title string
		file  string
	)
	cmd := &cobra.Command{
		Use:   "save [text...]",
		Short: "Save a draft from arguments, --file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, args, file)
			if err != nil {
				return err
			}
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("draft content is empty")
			}

			res, err := e.sync.Save(cmd.Context(), content, title, nil)
			if err != nil {
				return err
			}
			noticeTo(cmd, e.sync)
			where := "server"
			if res.Mirrored {
				where = "local mirror"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s) tx=%s\n", res.DraftID, where, res.TxHash)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "draft title")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from file")
	return cmd
}

func readContent(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
}

func newListCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := e.sync.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			noticeTo(cmd, e.sync)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), drafts)
			}
			if len(drafts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no drafts")
				return nil
			}
			for _, d := range drafts {
				ts := time.UnixMilli(d.Timestamp()).Format("2006-01-02 15:04")
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", d.ID, ts, d.Title())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newLatestCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the newest draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, err := e.sync.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if !latest.Found {
				fmt.Fprintln(cmd.OutOrStdout(), "no drafts")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), latest.Content)
			return nil
		},
	}
}

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <draft-id>",
		Short: "Delete a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.sync.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch {
			case !res.Success:
				return fmt.Errorf("delete failed: %s", res.Error)
			case res.Deleted:
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s not found\n", args[0])
			}
			return nil
		},
	}
}

func newExportCmd(e *env) *cobra.Command {
	var (
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export <draft-id>",
		Short: "Download a draft as json, txt or md",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := e.client.Export(cmd.Context(), e.cfg.UserAddress, args[0], format)
			if err != nil {
				return err
			}
			path := filepath.Join(outDir, filepath.Base(file.Filename))
			if err := os.WriteFile(path, file.Body, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json, txt or md")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Parse a .json, .txt or .md draft file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			imported, err := e.client.Import(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			if !save {
				return printJSON(cmd.OutOrStdout(), imported)
			}
			res, err := e.sync.Save(cmd.Context(), imported.Content, imported.Title, nil)
			if err != nil {
				return err
			}
			noticeTo(cmd, e.sync)
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", res.DraftID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "save the imported draft")
	return cmd
}

func newGenerateCmd(e *env) *cobra.Command {
	var system string
	cmd := &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Generate content from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.client.Generate(cmd.Context(), e.cfg.UserAddress, strings.Join(args, " "), system)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "system instruction")
	return cmd
}

func newEnhanceCmd(e *env) *cobra.Command {
	var (
		kind string
		file string
	)
	cmd := &cobra.Command{
		Use:   "enhance [text...]",
		Short: "Enhance text (grammar, creativity, conciseness, professional, casual)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readContent(cmd, args, file)
			if err != nil {
				return err
			}
			res, err := e.client.Enhance(cmd.Context(), e.cfg.UserAddress, text, kind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "type", "grammar", "enhancement type")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read text from file")
	return cmd
}

func newWatchCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream draft events for the configured user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), cmd.OutOrStdout(), e.client.BaseURL(), e.cfg.UserAddress)
		},
	}
}

// watch prints one line per event until ctx ends or the server closes the stream.
func watch(ctx context.Context, out io.Writer, baseURL, userAddress string) error {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/drafts/" + userAddress
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var event models.DraftEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading events: %w", err)
		}
		if event.Type == "connected" {
			fmt.Fprintf(out, "watching drafts for %s\n", userAddress)
			continue
		}
		ts := time.UnixMilli(event.Timestamp).Format(time.RFC3339)
		fmt.Fprintf(out, "%s %s %s\n", ts, event.Type, event.DraftID)
	}
}
