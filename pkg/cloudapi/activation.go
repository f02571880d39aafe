package cloudapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/igniteclient/pkg/cryptoutil"
	"github.com/cuemby/igniteclient/pkg/httpclient"
	"github.com/cuemby/igniteclient/pkg/ierr"
)

// qualifierRNG is the narrow interface cryptoutil.EncryptQualifier needs;
// pkg/cryptoutil.SeededRNG satisfies it.
type qualifierRNG interface {
	RangeMax(seedKey string, max int) int
}

// ActivationRequest is the input to the one-time activation exchange:
// serial number, IMEI, VIN, hardware/software version, product type, and
// an optional device type gated by useDeviceType.
type ActivationRequest struct {
	Serial        string
	IMEI          string
	VIN           string
	HWVersion     string
	SWVersion     string
	ProductType   string
	DeviceType    string
	UseDeviceType bool
}

// ActivationResult is what Activate returns on a parsed success: the
// device id and passcode the cloud issued, plus the raw response string
// for diagnostics/audit.
type ActivationResult struct {
	DeviceID   string
	Passcode   string
	RespString string
}

type activationPayload struct {
	ProductType  string `json:"productType"`
	VIN          string `json:"vin"`
	SerialNumber string `json:"serialNumber"`
	IMEI         string `json:"imei"`
	HWVersion    string `json:"HW-Version"`
	SWVersion    string `json:"SW-Version"`
	DeviceType   string `json:"deviceType,omitempty"`
	Qualifier    string `json:"qualifier"`
	AAD          string `json:"aad,omitempty"`
}

// activationResponseV4 is the newer response envelope:
// {message, data: {deviceId|deviceID, passcode}}, message=="Success"
// signals acceptance.
type activationResponseV4 struct {
	Message string `json:"message"`
	Data    struct {
		DeviceID  string `json:"deviceId"`
		DeviceID2 string `json:"deviceID"`
		Passcode  string `json:"passcode"`
	} `json:"data"`
}

// activationResponseV2 is the older, flat response shape:
// {deviceId|deviceID, passcode}.
type activationResponseV2 struct {
	DeviceID  string `json:"deviceId"`
	DeviceID2 string `json:"deviceID"`
	Passcode  string `json:"passcode"`
}

// ActivationClient posts the activation payload to the configured
// activation URL and parses both response shapes the cloud may return.
type ActivationClient struct {
	Pool    *httpclient.Pool
	URL     string
	Mode    cryptoutil.Mode
	RNG     qualifierRNG
	Timeout time.Duration
}

// NewActivationClient builds a client posting to url, encrypting the
// activation qualifier under mode using rng for its randomized draw.
func NewActivationClient(pool *httpclient.Pool, url string, mode cryptoutil.Mode, rng qualifierRNG) *ActivationClient {
	return &ActivationClient{Pool: pool, URL: url, Mode: mode, RNG: rng, Timeout: 30 * time.Second}
}

// Activate builds and posts the activation payload. The caller (typically
// pkg/backoff.Controller.CalculateNextRetry by way of an activation
// manager) interprets ierr.Network/ierr.Timeout as "do not count this
// attempt".
func (c *ActivationClient) Activate(req ActivationRequest) (*ActivationResult, *ierr.Error) {
	qualifier, err := cryptoutil.EncryptQualifier(c.RNG, req.VIN, req.Serial, c.Mode)
	if err != nil {
		return nil, ierr.Wrap(ierr.InvalidInput, "build activation qualifier", err)
	}

	payload := activationPayload{
		ProductType:  req.ProductType,
		VIN:          req.VIN,
		SerialNumber: req.Serial,
		IMEI:         req.IMEI,
		HWVersion:    req.HWVersion,
		SWVersion:    req.SWVersion,
		Qualifier:    qualifier,
	}
	if req.UseDeviceType {
		payload.DeviceType = req.DeviceType
	}
	if c.Mode == cryptoutil.ModeGCM {
		payload.AAD = req.Serial
	}

	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, ierr.Wrap(ierr.InvalidInput, "marshal activation payload", marshalErr)
	}

	session, ok := c.Pool.Acquire()
	if !ok {
		return nil, ierr.New(ierr.Other, "http session pool exhausted")
	}
	defer c.Pool.Release(session)

	hreq := httpclient.NewHttpRequest(session)
	hreq.URL = c.URL
	hreq.Timeout = c.Timeout
	hreq.PostFields = body
	hreq.Headers["Content-Type"] = "application/json"

	resp := hreq.Execute()
	if resp.Code == ierr.Network || resp.Code == ierr.Timeout {
		return nil, ierr.New(resp.Code, "activation request failed")
	}
	if resp.Code != ierr.Ok {
		return nil, &ierr.Error{Code: resp.Code, Message: fmt.Sprintf("activation http %d: %s", resp.StatusCode, string(resp.Body))}
	}

	respString := string(resp.Body)

	var v4 activationResponseV4
	if json.Unmarshal(resp.Body, &v4) == nil && v4.Message != "" {
		if v4.Message != "Success" {
			return nil, ierr.New(ierr.ResponseData, "activation rejected: "+v4.Message)
		}
		return &ActivationResult{
			DeviceID:   firstNonEmpty(v4.Data.DeviceID, v4.Data.DeviceID2),
			Passcode:   v4.Data.Passcode,
			RespString: respString,
		}, nil
	}

	var v2 activationResponseV2
	if json.Unmarshal(resp.Body, &v2) == nil {
		deviceID := firstNonEmpty(v2.DeviceID, v2.DeviceID2)
		if deviceID != "" && v2.Passcode != "" {
			return &ActivationResult{DeviceID: deviceID, Passcode: v2.Passcode, RespString: respString}, nil
		}
	}

	return nil, ierr.New(ierr.ResponseFormat, "unrecognized activation response shape")
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
