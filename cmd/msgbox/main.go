// Command msgbox はメッセージボックスのバックエンドとターミナルクライアントを提供する。
//
// 使い方:
//
//	msgbox [serve]            APIサーバーを起動する
//	msgbox worker             期限切れセッションのクリーンアップを実行する
//	msgbox migrate [up|down|version]
//	msgbox healthcheck        /healthを確認する
//	msgbox client [flags]     ターミナルクライアントを起動する
//	msgbox adduser --email E  アカウントを登録する
//	msgbox deluser --email E  アカウントを削除する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/msgbox/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
