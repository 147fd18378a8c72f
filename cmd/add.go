package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-grab/app/client"
	"media-grab/app/config"
	"media-grab/app/database"
	"media-grab/app/downloader"
	"media-grab/app/logger"
	"media-grab/app/store"

	"github.com/spf13/cobra"
)

var addServer string

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "添加下载任务",
	Long: "通过运行中的服务器提交链接并立即开始下载；服务器未运行时只写入任务列表，" +
		"服务器下次启动或定时检查时开始下载",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		link, kind, err := downloader.ValidateSubmission(args[0])
		if err != nil {
			return err
		}

		cfg := config.Load()
		baseURL := addServer
		if baseURL == "" {
			baseURL = "http://127.0.0.1:" + cfg.Server.Port
		}

		err = submitToServer(cmd.Context(), cfg, baseURL, link)
		if err == nil || !errors.Is(err, client.ErrUnreachable) {
			return err
		}

		fmt.Printf("服务器未运行 (%s)，任务写入列表等待下载\n", baseURL)
		return queueOffline(cfg, link, kind)
	},
}

// submitToServer 下载只由服务器执行，避免同一任务出现两个下载进程
func submitToServer(ctx context.Context, cfg *config.Config, baseURL, link string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	c := client.New(baseURL, 10*time.Second)
	defer c.Close()

	if err := c.Login(ctx, cfg.Server.Username, cfg.Server.Password); err != nil {
		return err
	}
	task, err := c.Submit(ctx, link)
	if err != nil {
		return err
	}
	fmt.Printf("任务 %d 已提交到服务器: %s\n", task.ID, task.URL)
	return nil
}

// queueOffline 直接写入 Pending 记录
func queueOffline(cfg *config.Config, link string, kind downloader.Kind) error {
	db, err := database.Open(cfg.Download.DBPath, logger.NewNop())
	if err != nil {
		return err
	}
	defer database.Close(db)

	id, err := store.NewTaskStore(db).Create(link)
	if err != nil {
		return err
	}
	fmt.Printf("任务 %d 已创建 (%s): %s\n", id, kind, link)
	return nil
}

func init() {
	addCmd.Flags().StringVar(&addServer, "server", "", "服务器地址，默认 http://127.0.0.1:<server.port>")
	rootCmd.AddCommand(addCmd)
}
