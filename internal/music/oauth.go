package music

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

var GoogleDeviceEndpoint = oauth2.Endpoint{
	AuthURL:       "https://accounts.google.com/o/oauth2/auth",
	TokenURL:      "https://oauth2.googleapis.com/token",
	DeviceAuthURL: "https://oauth2.googleapis.com/device/code",
}

// OAuthDeviceAuthorizer runs RFC 8628 device authorization against an
// oauth2 provider, one poll per call.
type OAuthDeviceAuthorizer struct {
	config *oauth2.Config
}

func NewOAuthDeviceAuthorizer(clientID, clientSecret string, endpoint oauth2.Endpoint, scopes ...string) *OAuthDeviceAuthorizer {
	return &OAuthDeviceAuthorizer{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
	}
}

func (a *OAuthDeviceAuthorizer) FetchDeviceCode(ctx context.Context) (DeviceCode, error) {
	resp, err := a.config.DeviceAuth(ctx)
	if err != nil {
		return DeviceCode{}, err
	}

	verification := resp.VerificationURIComplete
	if verification == "" {
		verification = resp.VerificationURI
	}

	return DeviceCode{
		UserCode:        resp.UserCode,
		DeviceCode:      resp.DeviceCode,
		VerificationURL: verification,
		Interval:        time.Duration(resp.Interval) * time.Second,
	}, nil
}

func (a *OAuthDeviceAuthorizer) PollToken(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	tok, err := a.config.Exchange(ctx, "",
		oauth2.SetAuthURLParam("grant_type", deviceCodeGrantType),
		oauth2.SetAuthURLParam("device_code", deviceCode),
	)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			switch re.ErrorCode {
			case "authorization_pending", "slow_down":
				return nil, ErrAuthPending
			case "":
			default:
				return nil, fmt.Errorf("%s: %w", re.ErrorCode, err)
			}
		}
		return nil, err
	}
	return tok, nil
}

func (a *OAuthDeviceAuthorizer) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	return a.config.TokenSource(ctx, tok).Token()
}
