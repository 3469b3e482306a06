package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/admin"
	v16 "github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/catalog/v16"
	v21 "github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/catalog/v21"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/chargepoint"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/notifier"
	natsnotifier "github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/notifier/nats"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/scenario"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/vcp"
)

const (
	defaultCsmsURL       = "ws://localhost:8887"
	defaultChargePointID = "vcp-001"
	defaultAdminPort     = 9999
	envVarCsmsURL        = "CSMS_URL"
	envVarChargePointID  = "CP_ID"
	envVarOcppVersion    = "OCPP_VERSION"
	envVarBasicAuthPass  = "BASIC_AUTH_PASSWORD"
	envVarAdminPort      = "ADMIN_WS_PORT"
	envVarNatsURL        = "NATS_URL"
	envVarCallTimeout    = "CALL_TIMEOUT_SECONDS"
)

var log *logrus.Logger

func envOr(name, fallback string) string {
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	value, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %v: %v", name, err)
	}
	return parsed
}

func main() {
	version := ocpp.ProtocolVersion(envOr(envVarOcppVersion, string(ocpp.V16)))
	if !version.Valid() {
		log.Fatalf("unsupported OCPP version %v", version)
	}
	chargePointID := envOr(envVarChargePointID, defaultChargePointID)

	cp := chargepoint.New()
	cp.SeedConfiguration(map[string]chargepoint.ConfigurationKey{
		"HeartbeatInterval":        {Value: "60"},
		"MeterValueSampleInterval": {Value: "10"},
		"NumberOfConnectors":       {Value: "1", Readonly: true},
		"SupportedFeatureProfiles": {Value: "Core,FirmwareManagement", Readonly: true},
	})

	notifications := make(chan notifier.Notification, 64)
	reg := registry.New()

	connection := vcp.New(vcp.Config{
		Endpoint:          envOr(envVarCsmsURL, defaultCsmsURL),
		ChargePointID:     chargePointID,
		Version:           version,
		BasicAuthPassword: os.Getenv(envVarBasicAuthPass),
		CallTimeout:       time.Duration(envInt(envVarCallTimeout, 30)) * time.Second,
		Registry:          reg,
		Logger:            log,
	})

	if version == ocpp.V21 {
		v21.Register(reg, v21.NewHandlers(cp, notifications, connection))
	} else {
		v16.Register(reg, v16.NewHandlers(cp, notifications, connection))
	}

	bridge := admin.NewBridge(connection, reg, 30*time.Second, log)

	adminServer := admin.NewServer(bridge, envInt(envVarAdminPort, defaultAdminPort), log)
	if err := adminServer.Start(); err != nil {
		log.Fatal(err)
	}
	defer adminServer.Stop()

	if natsURL, ok := os.LookupEnv(envVarNatsURL); ok {
		natsNotifier := natsnotifier.New(natsURL, bridge)
		natsNotifier.SetChannel(notifications)
		if err := natsNotifier.Start(); err != nil {
			log.Fatal(err)
		}
		defer natsNotifier.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := connection.Connect(ctx); err != nil {
		log.Fatalf("cannot connect to CSMS: %v", err)
	}

	if err := scenario.Boot(ctx, connection, reg, cp, scenario.StationInfo{
		Model:           "VirtualChargePoint",
		Vendor:          "SIA PC Consulting",
		SerialNumber:    chargePointID,
		FirmwareVersion: "1.0.0",
	}); err != nil {
		log.Fatalf("boot failed: %v", err)
	}

	go func() {
		if err := scenario.HeartbeatLoop(ctx, connection, reg, cp); err != nil && err != context.Canceled {
			log.WithError(err).Warn("heartbeat loop stopped")
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Infof("received %v, shutting down", sig)
		cancel()
		_ = connection.Close()
	case <-connection.Done():
		log.Info("connection to CSMS ended")
	}
}

func init() {
	log = logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}
