package mazerunner

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const hawkVersion = "1"

// Credentials identify an API key pair created in the MazeRunner management console.
type Credentials struct {
	ID     string
	Secret string
}

// hawkSigner produces Hawk (sha256) Authorization headers.
type hawkSigner struct {
	creds Credentials
	now   func() time.Time
	nonce func() string
}

func newHawkSigner(creds Credentials) *hawkSigner {
	return &hawkSigner{
		creds: creds,
		now:   time.Now,
		nonce: randomNonce,
	}
}

// Header returns the Authorization header value for a request to u carrying
// payload with the given content type. An empty payload is still hashed.
func (s *hawkSigner) Header(method string, u *url.URL, contentType string, payload []byte) string {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	nonce := s.nonce()
	hash := hawkPayloadHash(contentType, payload)

	host, port := hawkHostPort(u)
	resource := u.EscapedPath()
	if u.RawQuery != "" {
		resource += "?" + u.RawQuery
	}

	normalized := strings.Join([]string{
		"hawk." + hawkVersion + ".header",
		ts,
		nonce,
		strings.ToUpper(method),
		resource,
		strings.ToLower(host),
		port,
		hash,
		"", // ext
	}, "\n") + "\n"

	mac := hmac.New(sha256.New, []byte(s.creds.Secret))
	mac.Write([]byte(normalized))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf(`Hawk id="%s", ts="%s", nonce="%s", hash="%s", mac="%s"`,
		s.creds.ID, ts, nonce, hash, sig)
}

func hawkPayloadHash(contentType string, payload []byte) string {
	mediaType := ""
	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = parsed
		} else {
			mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
		}
	}

	h := sha256.New()
	h.Write([]byte("hawk." + hawkVersion + ".payload\n"))
	h.Write([]byte(mediaType + "\n"))
	h.Write(payload)
	h.Write([]byte("\n"))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func hawkHostPort(u *url.URL) (string, string) {
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		host = u.Host
		switch u.Scheme {
		case "http":
			port = "80"
		default:
			port = "443"
		}
	}
	return host, port
}

func randomNonce() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}
