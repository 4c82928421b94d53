package blobstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrBadSignature indicates a missing, malformed, or forged signature.
	ErrBadSignature = errors.New("invalid blob URL signature")
	// ErrExpiredURL indicates a signature past its expiry.
	ErrExpiredURL = errors.New("blob URL expired")
)

// URLSigner mints and verifies time-limited access URLs for blobs, in the
// shape /blob/{tier}/{name}?exp={unix}&sig={hex}. The signature covers
// tier, name, and expiry, so a URL for one blob grants nothing else.
type URLSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewURLSigner creates a signer with the given secret key and URL lifetime.
func NewURLSigner(key []byte, ttl time.Duration) (*URLSigner, error) {
	if len(key) < 16 {
		return nil, errors.New("signing key must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("signing TTL must be positive")
	}
	return &URLSigner{key: key, ttl: ttl, now: time.Now}, nil
}

func (s *URLSigner) mac(tier, name string, exp int64) string {
	h := hmac.New(sha256.New, s.key)
	fmt.Fprintf(h, "%s\n%s\n%d", tier, name, exp)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign returns a relative signed URL for the blob, valid for the
// configured TTL from now.
func (s *URLSigner) Sign(tier, name string) string {
	exp := s.now().Add(s.ttl).Unix()
	return fmt.Sprintf("/blob/%s/%s?exp=%d&sig=%s",
		url.PathEscape(tier), url.PathEscape(name), exp, s.mac(tier, name, exp))
}

// Verify checks the expiry and signature query parameters for the blob.
func (s *URLSigner) Verify(tier, name, expParam, sigParam string) error {
	if expParam == "" || sigParam == "" {
		return ErrBadSignature
	}
	exp, err := strconv.ParseInt(expParam, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	want := s.mac(tier, name, exp)
	if !hmac.Equal([]byte(want), []byte(sigParam)) {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrExpiredURL
	}
	return nil
}
