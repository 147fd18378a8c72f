package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"media-grab/app/config"
	"media-grab/app/database"
	"media-grab/app/logger"
	"media-grab/app/model"
	"media-grab/app/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listStatuses []string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出下载任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		var statuses []model.TaskStatus
		for _, raw := range listStatuses {
			st, ok := model.ParseTaskStatus(raw)
			if !ok {
				return fmt.Errorf("未知的任务状态: %s", raw)
			}
			statuses = append(statuses, st)
		}

		cfg := config.Load()
		db, err := database.Open(cfg.Download.DBPath, logger.NewNop())
		if err != nil {
			return err
		}
		defer database.Close(db)

		tasks, err := store.NewTaskStore(db).List(statuses...)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\t状态\t进度\t标题\t创建时间")
		for _, task := range tasks {
			fmt.Fprintf(w, "%d\t%s\t%d%%\t%s\t%s\n",
				task.ID, task.Status, task.Progress, task.DisplayTitle(), humanize.Time(task.CreatedAt))
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "按状态过滤，可重复")
	rootCmd.AddCommand(listCmd)
}
