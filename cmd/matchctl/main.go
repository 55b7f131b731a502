// Package main - операторская утилита matchctl: миграции, ручной запуск
// цикла подбора, пересчёт статистики и разбор оценки пары.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alem-hub/study-match/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "matchctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
