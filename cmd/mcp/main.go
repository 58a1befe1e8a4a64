// Package main is the entry point for the MCP task tool server.
//
// The server exposes task CRUD tools to agent runtimes over streamable
// HTTP. Callers identify their user via a user_id query parameter on
// the endpoint URL; every tool call is scoped to that user.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/config"
	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/internal/tasktools"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting MCP task server")

	repo, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer repo.Close()

	taskSvc := service.NewTaskService(repo, log)

	mcpServer := server.NewMCPServer(
		"taskpilot-tasks",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	createTool := tasktools.NewCreateTool(taskSvc)
	mcpServer.AddTool(createTool.Definition(), createTool.Handle)

	listTool := tasktools.NewListTool(taskSvc)
	mcpServer.AddTool(listTool.Definition(), listTool.Handle)

	updateTool := tasktools.NewUpdateTool(taskSvc)
	mcpServer.AddTool(updateTool.Definition(), updateTool.Handle)

	completeTool := tasktools.NewCompleteTool(taskSvc)
	mcpServer.AddTool(completeTool.Definition(), completeTool.Handle)

	deleteTool := tasktools.NewDeleteTool(taskSvc)
	mcpServer.AddTool(deleteTool.Definition(), deleteTool.Handle)

	httpServer := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return tasktools.WithUserID(ctx, r.URL.Query().Get("user_id"))
		}),
	)

	go func() {
		log.Info("MCP server listening", zap.String("port", cfg.MCPServerPort))
		if err := httpServer.Start(":" + cfg.MCPServerPort); err != nil && err != http.ErrServerClosed {
			log.Error("MCP server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down MCP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("MCP server forced to shutdown", zap.Error(err))
	}

	log.Info("MCP server stopped")
}
