package radprobe

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2869"
)

// Config controls Access-Request probing.
type Config struct {
	Timeout       time.Duration
	NASIdentifier string
}

// Prober sends an Access-Request with freshly provisioned credentials to
// confirm the RADIUS server picked them up.
type Prober struct {
	timeout time.Duration
	nasID   string
}

func New(cfg Config) *Prober {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	nasID := strings.TrimSpace(cfg.NASIdentifier)
	if nasID == "" {
		nasID = "ispbill"
	}
	return &Prober{timeout: timeout, nasID: nasID}
}

func (p *Prober) Verify(ctx context.Context, gw domain.Gateway, username, password string) (domain.VerifyOutcome, error) {
	if strings.TrimSpace(gw.RadiusSecret) == "" {
		return domain.VerifySkipped, nil
	}
	secret := []byte(gw.RadiusSecret)

	packet := radius.New(radius.CodeAccessRequest, secret)
	if err := rfc2865.UserName_SetString(packet, username); err != nil {
		return domain.VerifyError, err
	}
	if err := rfc2865.UserPassword_SetString(packet, password); err != nil {
		return domain.VerifyError, err
	}
	if err := rfc2865.NASIdentifier_SetString(packet, p.nasID); err != nil {
		return domain.VerifyError, err
	}
	if err := addMessageAuthenticator(packet, secret); err != nil {
		return domain.VerifyError, fmt.Errorf("message authenticator: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	response, err := radius.Exchange(reqCtx, packet, authAddress(gw))
	if err != nil {
		return domain.VerifyError, err
	}

	switch response.Code {
	case radius.CodeAccessAccept:
		return domain.VerifyAccept, nil
	case radius.CodeAccessReject:
		return domain.VerifyReject, nil
	default:
		return domain.VerifyError, fmt.Errorf("unexpected RADIUS response code: %d", response.Code)
	}
}

func authAddress(gw domain.Gateway) string {
	host := strings.TrimSpace(gw.IPAddress)
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	port := gw.RadiusAuthPort
	if port <= 0 {
		port = domain.DefaultRadiusAuthPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func addMessageAuthenticator(packet *radius.Packet, secret []byte) error {
	rfc2869.MessageAuthenticator_Del(packet)
	if err := rfc2869.MessageAuthenticator_Set(packet, make([]byte, 16)); err != nil {
		return err
	}

	encoded, err := packet.Encode()
	if err != nil {
		return err
	}

	hash := hmac.New(md5.New, secret)
	hash.Write(encoded)
	return rfc2869.MessageAuthenticator_Set(packet, hash.Sum(nil))
}
