package mazetwin

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
)

var hawkAttr = regexp.MustCompile(`(\w+)="([^"]*)"`)

// authenticate rejects requests without a valid Hawk sha256 signature.
func (tw *Twin) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Hawk ") {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		attrs := make(map[string]string)
		for _, m := range hawkAttr.FindAllStringSubmatch(header, -1) {
			attrs[m[1]] = m[2]
		}
		if attrs["id"] != tw.keyID {
			writeDetail(w, http.StatusUnauthorized, "Unknown credentials.")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Unreadable body.")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if attrs["hash"] != payloadHash(r.Header.Get("Content-Type"), body) {
			writeDetail(w, http.StatusUnauthorized, "Payload hash mismatch.")
			return
		}
		if !hmac.Equal([]byte(attrs["mac"]), []byte(tw.requestMAC(r, attrs))) {
			writeDetail(w, http.StatusUnauthorized, "Bad MAC.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (tw *Twin) requestMAC(r *http.Request, attrs map[string]string) string {
	host, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
		port = "80"
		if r.TLS != nil {
			port = "443"
		}
	}
	normalized := "hawk.1.header\n" +
		attrs["ts"] + "\n" +
		attrs["nonce"] + "\n" +
		r.Method + "\n" +
		r.URL.RequestURI() + "\n" +
		strings.ToLower(host) + "\n" +
		port + "\n" +
		attrs["hash"] + "\n" +
		attrs["ext"] + "\n"

	mac := hmac.New(sha256.New, []byte(tw.secret))
	mac.Write([]byte(normalized))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func payloadHash(contentType string, body []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	h := sha256.New()
	io.WriteString(h, "hawk.1.payload\n"+mediaType+"\n")
	h.Write(body)
	io.WriteString(h, "\n")
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
