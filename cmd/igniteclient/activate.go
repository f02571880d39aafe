package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/igniteclient/internal/agent"
	"github.com/cuemby/igniteclient/pkg/log"
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Run the one-time activation exchange and exit",
	RunE:  runActivate,
}

func init() {
	activateCmd.Flags().StringVar(&flagSerial, "serial", "", "device serial number")
	activateCmd.Flags().StringVar(&flagIMEI, "imei", "", "device IMEI")
	activateCmd.Flags().StringVar(&flagVIN, "vin", "", "vehicle identification number")
	activateCmd.Flags().StringVar(&flagHWVersion, "hw-version", "", "hardware version")
	activateCmd.Flags().StringVar(&flagSWVersion, "sw-version", "", "software version")
	activateCmd.Flags().StringVar(&flagProductType, "product-type", "", "product type")
	activateCmd.Flags().StringVar(&flagDeviceType, "device-type", "", "device type, sent only when --use-device-type is set")
	activateCmd.Flags().BoolVar(&flagUseDeviceType, "use-device-type", false, "include device type in activation/auth requests")
	activateCmd.Flags().StringVar(&flagMQTTBroker, "mqtt-broker", "tcp://localhost:1883", "MQTT broker URL (unused by activate, accepted for flag parity with run)")
	activateCmd.Flags().StringVar(&flagMQTTClientID, "mqtt-client-id", "igniteclient", "MQTT client id")
}

func runActivate(_ *cobra.Command, _ []string) error {
	a, err := agent.New(configPath, dataDir, identityFromFlags(), mqttEndpointFromFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.IsActivated() {
		fmt.Println("device is already activated")
		return nil
	}

	if err := a.Activate(); err != nil {
		return err
	}

	log.Logger.Info().Msg("activation succeeded")
	fmt.Println("activation succeeded")
	return nil
}
