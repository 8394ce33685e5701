// LLMルーターのエントリポイント。
// serveでHTTPサービスを起動し、decide/classifyでルーティング判定をその場で確認できる。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/llmrouter/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "router: %v\n", err)
		stop()
		os.Exit(bootstrap.ExitCode(err))
	}
}
