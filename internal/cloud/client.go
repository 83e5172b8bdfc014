package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrInvalidCode means the app link code was rejected by the vendor cloud,
// typically expired or mistyped.
var ErrInvalidCode = errors.New("invalid or expired app link code")

// appLinkCodeLength is fixed by the vendor app.
const appLinkCodeLength = 8

// Credentials are the per-device secrets the vendor cloud hands out in
// exchange for an app link code. AccessToken doubles as the MQTT username.
type Credentials struct {
	AccessToken  string
	DeviceSerial string
}

// Client talks to the Bayrol vendor cloud's device-linking endpoint.
type Client struct {
	http   *resty.Client
	apiURL string
	logger *zap.Logger
}

// NewClient creates a vendor cloud client. apiURL is the accesstoken
// endpoint; the app link code is appended as a query parameter.
func NewClient(apiURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "Bayrol-Pool-API/1.0"),
		apiURL: apiURL,
		logger: logger,
	}
}

// ExchangeAppLinkCode trades an 8-character app link code for the device's
// access token and serial. The code is single-use on the vendor side.
func (c *Client) ExchangeAppLinkCode(ctx context.Context, code string) (*Credentials, error) {
	if len(code) != appLinkCodeLength {
		return nil, fmt.Errorf("app link code must be exactly %d characters", appLinkCodeLength)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("code", code).
		Get(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to reach vendor cloud: %w", err)
	}

	var body struct {
		AccessToken  string `json:"accessToken"`
		DeviceSerial string `json:"deviceSerial"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		if resp.StatusCode() == http.StatusUnauthorized {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("invalid response from vendor cloud (HTTP %d)", resp.StatusCode())
	}

	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("Vendor cloud rejected app link code",
			zap.Int("status", resp.StatusCode()),
			zap.String("error", body.Error),
		)
		if resp.StatusCode() == http.StatusUnauthorized {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("vendor cloud error: HTTP %d", resp.StatusCode())
	}

	if body.AccessToken == "" || body.DeviceSerial == "" {
		if body.Error != "" {
			return nil, fmt.Errorf("vendor cloud error: %s", body.Error)
		}
		return nil, ErrInvalidCode
	}

	c.logger.Info("Retrieved device credentials",
		zap.String("device_serial", body.DeviceSerial),
	)
	return &Credentials{
		AccessToken:  body.AccessToken,
		DeviceSerial: body.DeviceSerial,
	}, nil
}
