package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/hitoshi/msgbox/internal/config"
	"github.com/hitoshi/msgbox/internal/inbox"
	"github.com/hitoshi/msgbox/internal/logger"
	"github.com/hitoshi/msgbox/internal/remote"
	"github.com/hitoshi/msgbox/internal/session"
	"github.com/hitoshi/msgbox/internal/ui"
)

// parseClientFlags はclientコマンドのフラグでcfgを上書きする。
// 戻り値のhelpがtrueの場合は使い方を表示して終了する。
func parseClientFlags(cfg *config.ClientConfig, args []string, output io.Writer) (help bool, err error) {
	flagSet := pflag.NewFlagSet("msgbox client", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "backend base URL (MSGBOX_SERVER_URL)")
	flagSet.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout (CLIENT_REQUEST_TIMEOUT)")
	flagSet.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write JSON log records to this file (CLIENT_LOG_FILE)")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return true, nil
		}
		return false, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return false, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	return false, cfg.Validate()
}

// openClientLog はクライアントのログ出力先を開く。
// TUIの画面を壊さないよう、ファイル未指定の場合はログを破棄する。
func openClientLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// runClient はターミナルクライアントを起動する。
func runClient(args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load client config: %w", err)
	}

	help, err := parseClientFlags(cfg, args, os.Stderr)
	if err != nil {
		return err
	}
	if help {
		return nil
	}

	logOutput, closeLog, err := openClientLog(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	log := logger.SetupDefault(logOutput, logger.ParseLevel(cfg.LogLevel))
	log.Info("starting client", slog.String("server_url", cfg.ServerURL))

	backendClient := remote.New(cfg.ServerURL, cfg.RequestTimeout, log)
	list := inbox.NewController(backendClient, log)
	sess := session.NewController(backendClient, list, log)
	sess.Start()
	defer sess.Close()

	model := ui.NewModel(sess, list)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}

	// サーバー側のセッションを残さないよう、終了時にサインアウトする
	if sess.State().SignedIn() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		if err := sess.SignOut(ctx); err != nil {
			log.Warn("sign out on exit failed", slog.String("error", err.Error()))
		}
	}

	log.Info("client stopped")
	return nil
}
