// Package attachment derives deliverable URLs for stored attachment
// references. A reference is the opaque URL the upload pipeline wrote into
// the message row; it encodes the storage account, a resource kind and a
// delivery mode:
//
//	https://<host>/<cloud>/<resource>/<delivery>/v<version>/<public-id>[.<ext>]
//
// Public ("upload") references resolve to a stable URL. Restricted
// ("private"/"authenticated") references resolve to a freshly signed,
// time-boxed download URL carrying a content-disposition filename.
package attachment

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	deliveryPublic        = "upload"
	deliveryPrivate       = "private"
	deliveryAuthenticated = "authenticated"
)

type Signer struct {
	apiKey string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(apiKey, secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{
		apiKey: apiKey,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

type ref struct {
	base     *url.URL // scheme://host
	cloud    string
	resource string
	delivery string
	version  string
	publicID string
}

// parseRef splits a stored reference into its parts. Foreign or malformed
// URLs yield ok=false; the caller treats that as "no attachment URL", not
// as a failure.
func parseRef(raw string) (ref, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ref{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 {
		return ref{}, false
	}
	r := ref{
		base:     &url.URL{Scheme: u.Scheme, Host: u.Host},
		cloud:    parts[0],
		resource: parts[1],
		delivery: parts[2],
	}
	rest := parts[3:]
	if strings.HasPrefix(rest[0], "v") {
		if _, err := strconv.Atoi(rest[0][1:]); err == nil {
			r.version = rest[0]
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		return ref{}, false
	}
	r.publicID = strings.Join(rest, "/")
	switch r.delivery {
	case deliveryPublic, deliveryPrivate, deliveryAuthenticated:
		return r, true
	}
	return ref{}, false
}

// DeliveryURL resolves a stored reference to the URL a client may fetch.
// filename, when given, supplies the format extension and the download
// disposition for restricted attachments. Returns ok=false when the
// reference cannot be parsed.
func (s *Signer) DeliveryURL(storedRef, filename string) (string, bool) {
	r, ok := parseRef(storedRef)
	if !ok {
		return "", false
	}
	if r.delivery == deliveryPublic {
		return s.publicURL(r, filename), true
	}
	return s.signedDownloadURL(r, filename), true
}

func extOf(name string) string {
	return strings.TrimPrefix(path.Ext(name), ".")
}

func (s *Signer) publicURL(r ref, filename string) string {
	segments := []string{r.cloud, r.resource, r.delivery}
	if r.version != "" {
		segments = append(segments, r.version)
	}
	publicID := r.publicID
	if extOf(publicID) == "" {
		if ext := extOf(filename); ext != "" {
			publicID += "." + ext
		}
	}
	segments = append(segments, publicID)
	u := *r.base
	u.Path = "/" + strings.Join(segments, "/")
	return u.String()
}

// signedDownloadURL builds a time-boxed download link. The signature covers
// the sorted query parameters plus the account secret, so every call mints
// a fresh token for the same underlying object.
func (s *Signer) signedDownloadURL(r ref, filename string) string {
	expires := s.now().Add(s.ttl).Unix()
	publicID := strings.TrimSuffix(r.publicID, path.Ext(r.publicID))

	params := url.Values{}
	params.Set("public_id", publicID)
	params.Set("expires_at", strconv.FormatInt(expires, 10))
	if ext := extOf(r.publicID); ext != "" {
		params.Set("format", ext)
	} else if ext := extOf(filename); ext != "" {
		params.Set("format", ext)
	}
	if filename != "" {
		params.Set("attachment", filename)
	}
	params.Set("signature", s.sign(params))
	if s.apiKey != "" {
		params.Set("api_key", s.apiKey)
	}

	u := *r.base
	u.Path = "/" + strings.Join([]string{r.cloud, r.resource, "download"}, "/")
	u.RawQuery = params.Encode()
	return u.String()
}

func (s *Signer) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params.Get(k)))
	}
	sum := sha1.Sum(append([]byte(strings.Join(pairs, "&")), s.secret...))
	return hex.EncodeToString(sum[:])
}
