package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/hitoshi/msgbox/internal/auth"
	"github.com/hitoshi/msgbox/internal/config"
	"github.com/hitoshi/msgbox/internal/repository"
	"github.com/hitoshi/msgbox/internal/user"
)

// addUserOptions はadduserコマンドの引数。
type addUserOptions struct {
	Email    string
	Password string
}

// parseAddUserFlags はadduserコマンドのフラグを解析する。
// パスワードはフラグで省略した場合MSGBOX_PASSWORD環境変数から読む。
func parseAddUserFlags(args []string, output io.Writer) (addUserOptions, error) {
	var opts addUserOptions

	flagSet := pflag.NewFlagSet("msgbox adduser", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&opts.Email, "email", "", "email address of the new account")
	flagSet.StringVar(&opts.Password, "password", "", "password (default: $MSGBOX_PASSWORD)")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}

	if opts.Password == "" {
		opts.Password = os.Getenv("MSGBOX_PASSWORD")
	}
	if opts.Email == "" {
		return opts, fmt.Errorf("--email is required")
	}
	if opts.Password == "" {
		return opts, fmt.Errorf("--password or MSGBOX_PASSWORD is required")
	}
	return opts, nil
}

// runAddUser はアカウントを登録する。
func runAddUser(cfg *config.Config, args []string) error {
	opts, err := parseAddUserFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	service := auth.NewService(
		auth.NewBcryptHasher(),
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		slog.Default(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := service.Register(ctx, opts.Email, opts.Password)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	slog.Info("account created", slog.String("user_id", user.ID), slog.String("email", user.Email))
	return nil
}

// parseDelUserFlags はdeluserコマンドのフラグを解析し、メールアドレスを返す。
func parseDelUserFlags(args []string, output io.Writer) (string, error) {
	var email string

	flagSet := pflag.NewFlagSet("msgbox deluser", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&email, "email", "", "email address of the account to delete")

	if err := flagSet.Parse(args); err != nil {
		return "", err
	}
	if email == "" {
		return "", fmt.Errorf("--email is required")
	}
	return email, nil
}

// runDelUser はアカウントとそのセッション・メッセージを削除する。
func runDelUser(cfg *config.Config, args []string) error {
	email, err := parseDelUserFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// REDIS_URLが設定されていればキャッシュ済みのセッションも取り除く
	sessionRepo, closeCache, err := newSessionRepository(ctx, cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer closeCache()

	service := user.NewService(repository.NewPostgresUserRepo(db), sessionRepo, slog.Default())
	userID, err := service.Withdraw(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("account deleted", slog.String("user_id", userID))
	return nil
}
