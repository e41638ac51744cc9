package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/vairify/vaicheck-server-go/internal/util"
)

const qrPayloadType = "vai-check-session"

var ErrInvalidQRToken = errors.New("invalid QR token")

// QRPayload is what the initiator's QR code carries. The counterpart's app
// scans it and hands it back verbatim on join.
type QRPayload struct {
	Type            string `cbor:"t"`
	SessionID       string `cbor:"s"`
	Code            string `cbor:"c"`
	InitiatorNumber string `cbor:"v"`
	ExpiresAt       int64  `cbor:"e"`
}

func (p *QRPayload) Expired(now time.Time) bool {
	return now.Unix() >= p.ExpiresAt
}

// QRCodec signs and verifies rendezvous tokens. Tokens are the deterministic
// CBOR encoding of the payload, base64url'd, followed by an HMAC over that text.
type QRCodec struct {
	secret string
	enc    cbor.EncMode
	dec    cbor.DecMode
}

func NewQRCodec(secret string) (*QRCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("QR signing secret is empty")
	}
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}
	return &QRCodec{secret: secret, enc: enc, dec: dec}, nil
}

func (c *QRCodec) Encode(p QRPayload) (string, error) {
	raw, err := c.enc.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode QR payload: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + util.HmacSHA256(c.secret, body), nil
}

func (c *QRCodec) Decode(token string) (*QRPayload, error) {
	body, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || body == "" || sig == "" {
		return nil, ErrInvalidQRToken
	}
	if !util.ConstantTimeEqual(sig, util.HmacSHA256(c.secret, body)) {
		return nil, ErrInvalidQRToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidQRToken
	}
	var p QRPayload
	if err := c.dec.Unmarshal(raw, &p); err != nil {
		return nil, ErrInvalidQRToken
	}
	if p.Type != qrPayloadType || p.SessionID == "" {
		return nil, ErrInvalidQRToken
	}
	return &p, nil
}
