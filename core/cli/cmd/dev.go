package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hyperterse/queryengine/core/logger"
)

var devCmd = &cobra.Command{
	Use:   "dev [schema]",
	Short: "Serve the schema in development mode",
	Long:  `Serve the schema over HTTP and swap in a new engine whenever the schema file changes.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDevServer,
}

func init() {
	rootCmd.AddCommand(devCmd)
	addServerFlags(devCmd)
}

func runDevServer(cmd *cobra.Command, args []string) error {
	log := logger.New("dev")
	ctx := cmd.Context()

	project, err := loadProject(args)
	if err != nil {
		return err
	}
	rt, cleanup, err := prepareRuntime(ctx, project)
	if err != nil {
		return err
	}
	defer cleanup()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(project.SchemaPath)); err != nil {
		return err
	}

	reload := make(chan struct{}, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != project.SchemaPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(300*time.Millisecond, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("Watcher error: %v", err)
			}
		}
	}()

	if err := rt.StartAsync(); err != nil {
		return err
	}
	log.Infof("Watching %s for changes...", project.SchemaPath)

	for {
		select {
		case <-sigChan:
			return rt.Stop()
		case <-reload:
			content, err := os.ReadFile(project.SchemaPath)
			if err != nil {
				log.Errorf("Failed to read schema: %v", err)
				continue
			}
			log.Infof("Schema changed, reloading...")
			if err := rt.ReloadSchema(ctx, string(content)); err != nil {
				log.Errorf("Reload failed, keeping the previous engine: %v", err)
			}
		}
	}
}
