package auth

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strconv"
	"strings"
)

type OutputFormat int

const (
	Hex OutputFormat = iota
	UpperHex
	Base64
)

func digest(h func() hash.Hash, secret, payload string, format OutputFormat) string {
	mac := hmac.New(h, []byte(secret))
	mac.Write([]byte(payload))
	sum := mac.Sum(nil)
	switch format {
	case UpperHex:
		return strings.ToUpper(hex.EncodeToString(sum))
	case Base64:
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// ConcatHMAC signs nonce + method + path(?query) + body. The result travels
// either in three headers (key, nonce, signature) or, when Scheme is set, in a
// single Authorization header of the form "<Scheme> key:nonce:signature".
type ConcatHMAC struct {
	Hash   func() hash.Hash
	Output OutputFormat
	Scheme string

	KeyHeader       string
	NonceHeader     string
	SignatureHeader string
}

func (ConcatHMAC) Required() []string { return []string{CredAPIKey, CredSecret} }

func (s ConcatHMAC) Sign(req Request, creds Credentials, nonce int64) (Signed, error) {
	if err := creds.Check(s.Required()); err != nil {
		return Signed{}, err
	}
	if s.Hash == nil {
		return Signed{}, fmt.Errorf("concat hmac: no hash configured")
	}
	out, err := req.Unsigned()
	if err != nil {
		return Signed{}, err
	}
	ts := strconv.FormatInt(nonce, 10)
	payload := ts + strings.ToUpper(req.Method) + req.PathWithQuery() + string(out.Body)
	sig := digest(s.Hash, creds.Secret, payload, s.Output)

	if s.Scheme != "" {
		out.Header.Set("Authorization", s.Scheme+" "+creds.APIKey+":"+ts+":"+sig)
		return out, nil
	}
	out.Header.Set(s.KeyHeader, creds.APIKey)
	out.Header.Set(s.NonceHeader, ts)
	out.Header.Set(s.SignatureHeader, sig)
	return out, nil
}

// QueryHMAC signs the canonical query string, with the nonce and any Extra
// parameters merged in first. The signature is appended as SignatureParam,
// sent in SignatureHeader, or both. Requests with a body carry the signed
// string form-encoded in the body; others carry it in the URL.
type QueryHMAC struct {
	Hash   func() hash.Hash
	Output OutputFormat

	NonceParam      string
	SignatureParam  string
	KeyHeader       string
	SignatureHeader string

	Extra   map[string]string
	Headers func(nonce int64) map[string]string
}

func (QueryHMAC) Required() []string { return []string{CredAPIKey, CredSecret} }

func (s QueryHMAC) Sign(req Request, creds Credentials, nonce int64) (Signed, error) {
	if err := creds.Check(s.Required()); err != nil {
		return Signed{}, err
	}
	if s.Hash == nil {
		return Signed{}, fmt.Errorf("query hmac: no hash configured")
	}
	for _, k := range sortedKeys(s.Extra) {
		if _, set := req.Params[k]; !set {
			req = req.With(k, s.Extra[k])
		}
	}
	if s.NonceParam != "" {
		req = req.With(s.NonceParam, nonce)
	}

	payload := req.Query()
	sig := digest(s.Hash, creds.Secret, payload, s.Output)
	signed := payload
	if s.SignatureParam != "" {
		if signed != "" {
			signed += "&"
		}
		signed += s.SignatureParam + "=" + sig
	}

	out := Signed{Method: req.Method, Header: http.Header{}}
	base := strings.TrimRight(req.BaseURL, "/") + req.Path
	if req.HasBody() {
		out.URL = base
		out.Body = []byte(signed)
		out.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else if signed != "" {
		out.URL = base + "?" + signed
	} else {
		out.URL = base
	}

	if s.KeyHeader != "" {
		out.Header.Set(s.KeyHeader, creds.APIKey)
	}
	if s.SignatureHeader != "" {
		out.Header.Set(s.SignatureHeader, sig)
	}
	if s.Headers != nil {
		for k, v := range s.Headers(nonce) {
			out.Header.Set(k, v)
		}
	}
	return out, nil
}

// KeyedHMAC signs apiKey + nonce, followed by the body on requests that carry
// one. Query parameters travel unsigned in the URL. The key, nonce and
// signature go in headers; Headers adds per-request extras such as an
// idempotency id.
type KeyedHMAC struct {
	Hash   func() hash.Hash
	Output OutputFormat

	KeyHeader       string
	NonceHeader     string
	SignatureHeader string

	Headers func(nonce int64) map[string]string
}

func (KeyedHMAC) Required() []string { return []string{CredAPIKey, CredSecret} }

func (s KeyedHMAC) Sign(req Request, creds Credentials, nonce int64) (Signed, error) {
	if err := creds.Check(s.Required()); err != nil {
		return Signed{}, err
	}
	if s.Hash == nil {
		return Signed{}, fmt.Errorf("keyed hmac: no hash configured")
	}
	out, err := req.Unsigned()
	if err != nil {
		return Signed{}, err
	}
	ts := strconv.FormatInt(nonce, 10)
	payload := creds.APIKey + ts + string(out.Body)

	out.Header.Set(s.KeyHeader, creds.APIKey)
	out.Header.Set(s.NonceHeader, ts)
	out.Header.Set(s.SignatureHeader, digest(s.Hash, creds.Secret, payload, s.Output))
	if s.Headers != nil {
		for k, v := range s.Headers(nonce) {
			out.Header.Set(k, v)
		}
	}
	return out, nil
}
