package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"

	"github.com/shine-emu/fiesta/config"
	"github.com/shine-emu/fiesta/lib/logger"
	"github.com/shine-emu/fiesta/shine/dispatch"
	"github.com/shine-emu/fiesta/shine/server"
)

var banner = `
    _______           __
   / ____(_)__  _____/ /_____ _
  / /_  / / _ \/ ___/ __/ __ '/
 / __/ / /  __(__  ) /_/ /_/ /
/_/   /_/\___/____/\__/\__,_/
`

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

func main() {
	print(banner)
	_ = godotenv.Load()
	configFilename := os.Getenv("CONFIG")
	if configFilename == "" && fileExists(config.DefaultConfPath) {
		configFilename = config.DefaultConfPath
	}
	config.Setup(configFilename)
	logger.Setup(&logger.Settings{
		Path: config.Properties.LogDir,
		Name: "fiesta",
		Ext:  "log",
	})

	if config.Properties.MetricsBind != "" {
		go func() {
			http.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
				metrics.WritePrometheus(w, true)
			})
			if err := http.ListenAndServe(config.Properties.MetricsBind, nil); err != nil {
				logger.Errorf("metrics endpoint: %v", err)
			}
		}()
	}

	pool := dispatch.New(config.Properties.Workers, server.MakeEchoProcessor())
	err := server.ListenAndServeWithSignal(server.Config{
		Address:     fmt.Sprintf("%s:%d", config.Properties.Bind, config.Properties.Port),
		MaxClients:  config.Properties.MaxClients,
		AcceptFatal: config.Properties.AcceptFatal,
	}, pool)
	if err != nil {
		logger.Errorf("start server failed: %v", err)
	}
}
