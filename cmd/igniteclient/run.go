package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/igniteclient/internal/agent"
	"github.com/cuemby/igniteclient/pkg/log"
)

var (
	flagSerial        string
	flagIMEI          string
	flagVIN           string
	flagHWVersion     string
	flagSWVersion     string
	flagProductType   string
	flagDeviceType    string
	flagUseDeviceType bool

	flagMQTTBroker   string
	flagMQTTClientID string
	flagMQTTUsername string
	flagMQTTPassword string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ignite client as a long-running agent process",
	RunE:  runAgent,
}

func init() {
	runCmd.Flags().StringVar(&flagSerial, "serial", "", "device serial number")
	runCmd.Flags().StringVar(&flagIMEI, "imei", "", "device IMEI")
	runCmd.Flags().StringVar(&flagVIN, "vin", "", "vehicle identification number")
	runCmd.Flags().StringVar(&flagHWVersion, "hw-version", "", "hardware version")
	runCmd.Flags().StringVar(&flagSWVersion, "sw-version", "", "software version")
	runCmd.Flags().StringVar(&flagProductType, "product-type", "", "product type")
	runCmd.Flags().StringVar(&flagDeviceType, "device-type", "", "device type, sent only when --use-device-type is set")
	runCmd.Flags().BoolVar(&flagUseDeviceType, "use-device-type", false, "include device type in activation/auth requests")

	runCmd.Flags().StringVar(&flagMQTTBroker, "mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	runCmd.Flags().StringVar(&flagMQTTClientID, "mqtt-client-id", "igniteclient", "MQTT client id")
	runCmd.Flags().StringVar(&flagMQTTUsername, "mqtt-username", "", "MQTT username")
	runCmd.Flags().StringVar(&flagMQTTPassword, "mqtt-password", "", "MQTT password")
}

func identityFromFlags() agent.Identity {
	return agent.Identity{
		Serial:        flagSerial,
		IMEI:          flagIMEI,
		VIN:           flagVIN,
		HWVersion:     flagHWVersion,
		SWVersion:     flagSWVersion,
		ProductType:   flagProductType,
		DeviceType:    flagDeviceType,
		UseDeviceType: flagUseDeviceType,
	}
}

func mqttEndpointFromFlags() agent.MQTTEndpoint {
	return agent.MQTTEndpoint{
		Broker:   flagMQTTBroker,
		ClientID: flagMQTTClientID,
		Username: flagMQTTUsername,
		Password: flagMQTTPassword,
	}
}

func runAgent(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := agent.New(configPath, dataDir, identityFromFlags(), mqttEndpointFromFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.IsActivated() {
		log.Logger.Info().Msg("device not yet activated, attempting activation before serving")
		if aerr := a.Activate(); aerr != nil {
			log.Errorf("agent: initial activation failed, continuing unactivated", aerr)
		}
	}

	log.Logger.Info().Msg("igniteclient agent starting")
	return a.Run(ctx)
}
