// Command catalog serves a mock catalog backend from YAML seed files.
//
//	./catalog -apps ./apps.yaml -port 8100
package main

import (
	"flag"
	"log"
	"net"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/logging"
)

func main() {
	apps := flag.String("apps", "apps.yaml", "Seed file or directory of *.yaml files")
	host := flag.String("host", "127.0.0.1", "Listen host")
	port := flag.String("port", "8100", "Listen port")
	dev := flag.Bool("dev", true, "Development logging")
	flag.Parse()

	logger := logging.NewFromSettings("info", *dev)
	defer logger.Sync()

	seeded, err := catalog.LoadApps(*apps)
	if err != nil {
		log.Fatalf("Failed to load apps from %s: %v", *apps, err)
	}
	for _, app := range seeded {
		logger.Info("Seeded micro-app",
			zap.String("id", app.ID),
			zap.Bool("exchange", app.CanExchange()),
			zap.Bool("file_access", app.Permissions.FileAccess))
	}

	addr := net.JoinHostPort(*host, *port)
	logger.Info("Mock catalog listening", zap.String("addr", addr), zap.Int("apps", len(seeded)))
	if err := catalog.NewMockHandler(seeded).Run(addr); err != nil {
		logger.Fatal("Mock catalog stopped", zap.Error(err))
	}
}
