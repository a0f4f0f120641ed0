// Command moodshare はセラピストとのデータ共有APIサーバーを起動する。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（既定）
//	migrate      未適用のマイグレーションを適用する
//	healthcheck  /healthを確認する（Dockerヘルスチェック用）
//	token <id>   指定ユーザーのアクセストークンを発行する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/moodshare/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
