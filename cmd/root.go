package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hawkingrei/mihari/config"
	"github.com/hawkingrei/mihari/watcher"
)

var (
	configPath  string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "mihari ROOT [IGNORED-DIR ...]",
	Short: "mihari watches a directory tree and logs every change",
	Long: `mihari recursively watches a directory with inotify and logs file and
directory creations, deletions, modifications, moves and renames.
Positional arguments after ROOT name directories to ignore; .git is
always ignored.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics", "", "listen address for the Prometheus endpoint")
}

func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Root = args[0]
		cfg.Ignore = append(cfg.Ignore, args[1:]...)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if cfg.Root == "" {
		_ = cmd.Usage()
		return errors.New("no root directory specified")
	}
	cfg.Ignore = append(cfg.Ignore, ".git")

	w, err := watcher.New(watcher.Config{
		Root:   cfg.Root,
		Ignore: cfg.Ignore,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				logrus.WithError(err).Error("Metrics endpoint failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		w.Stop()
	}()

	logrus.Infof("Watching directory: %s", w.Root())
	logrus.Info("Press Ctrl+C to stop.")
	return w.Run()
}
