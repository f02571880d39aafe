package agent

import (
	"fmt"

	"github.com/cuemby/igniteclient/pkg/cloudapi"
	"github.com/cuemby/igniteclient/pkg/ierr"
	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/types"
)

// storePasscodeKey persists the passcode alongside `login` so a restarted
// process can re-derive an auth token without repeating activation.
const storePasscodeKey = "passcode"

// Activate runs the one-time activation exchange, gated by the backoff
// controller's Proceed/CalculateNextRetry contract: every attempt consults
// Proceed first and reports its outcome code back via CalculateNextRetry,
// whether or not the attempt itself succeeds.
func (a *Agent) Activate() error {
	if a.IsActivated() {
		return nil
	}
	if !a.backoffCtl.Proceed() {
		return fmt.Errorf("agent: activation backoff has not elapsed")
	}

	req := cloudapi.ActivationRequest{
		Serial:        a.identity.Serial,
		IMEI:          a.identity.IMEI,
		VIN:           a.identity.VIN,
		HWVersion:     a.identity.HWVersion,
		SWVersion:     a.identity.SWVersion,
		ProductType:   a.identity.ProductType,
		DeviceType:    a.identity.DeviceType,
		UseDeviceType: a.identity.UseDeviceType,
	}

	result, aerr := a.activation.Activate(req)
	a.backoffCtl.CalculateNextRetry(codeOf(aerr))
	if aerr != nil {
		return aerr
	}

	if err := a.store.SetString("login", result.DeviceID); err != nil {
		log.Errorf("agent: persist login failed", err)
	}
	if err := a.store.SetString(storePasscodeKey, result.Passcode); err != nil {
		log.Errorf("agent: persist passcode failed", err)
	}
	if a.identity.VIN != "" {
		if err := a.store.SetString("VIN", a.identity.VIN); err != nil {
			log.Errorf("agent: persist VIN failed", err)
		}
	}
	if err := a.store.SetString("ICP.ActivationStatus", "true"); err != nil {
		log.Errorf("agent: persist activation status failed", err)
	}

	a.mu.Lock()
	a.activated = true
	a.mu.Unlock()
	a.backoffCtl.Reset()

	return a.fetchAuthToken(result.DeviceID, result.Passcode)
}

// fetchAuthToken exchanges (login, passcode) for a fresh cloud auth token
// and stores it in memory for IsFresh checks by callers that need to
// authenticate outbound requests.
func (a *Agent) fetchAuthToken(login, passcode string) error {
	result, aerr := a.auth.FetchToken(cloudapi.AuthRequest{
		Login:         login,
		Passcode:      passcode,
		ProductType:   a.identity.ProductType,
		UseDeviceType: a.identity.UseDeviceType,
	})
	if aerr != nil {
		return aerr
	}
	a.mu.Lock()
	a.token = result.Token
	a.mu.Unlock()
	return nil
}

// Token returns the most recently fetched auth token.
func (a *Agent) Token() types.AuthToken {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func codeOf(aerr *ierr.Error) ierr.Code {
	if aerr == nil {
		return ierr.Ok
	}
	return aerr.Code
}
