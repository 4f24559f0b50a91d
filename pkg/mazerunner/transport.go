package mazerunner

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mazerunner_api_requests_total",
			Help: "Total number of requests sent to the MazeRunner API",
		},
		[]string{"method", "code"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mazerunner_api_request_duration_seconds",
			Help:    "Latency of MazeRunner API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
}

// Request describes one call to the MazeRunner API.
type Request struct {
	Method string
	// Path is either relative to the API host ("/api/v1.0/") or an absolute URL,
	// as found in resource "url" fields and pagination links.
	Path  string
	Query url.Values
	// Body is sent as JSON unless Files is set, in which case Body must be a
	// map[string]any and is sent as multipart form values.
	Body  any
	Files map[string]string
	// Stream leaves the response body open for the caller.
	Stream bool
	// Raw skips the JSON content checks.
	Raw bool
}

// Response is a completed API exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	// Data holds the body unless the request was streamed.
	Data []byte
	// Body is set only for streamed requests and must be closed by the caller.
	Body io.ReadCloser
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Transport sends authenticated requests to a single MazeRunner host.
// It is safe for concurrent use.
type Transport struct {
	baseURL    *url.URL
	signer     *hawkSigner
	httpClient *http.Client
	log        *logrus.Logger
}

// NewTransport builds a Transport from cfg. The certificate in cfg is used as the
// only trusted root; the host name in the certificate is not checked.
func NewTransport(cfg Config, log *logrus.Logger) (*Transport, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	base := cfg.BaseURL
	if base == "" {
		if cfg.Host == "" {
			return nil, &ValidationError{Err: errors.New("host is required")}
		}
		base = "https://" + cfg.Host
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}

	tlsConfig, err := pinnedTLSConfig(cfg.Certificate)
	if err != nil {
		return nil, err
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	httpTransport.TLSClientConfig = tlsConfig

	return &Transport{
		baseURL: baseURL,
		signer:  newHawkSigner(Credentials{ID: cfg.APIKey, Secret: cfg.APISecret}),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: httpTransport,
		},
		log: log,
	}, nil
}

// BaseURL returns the root every relative path is resolved against.
func (t *Transport) BaseURL() string {
	return t.baseURL.String()
}

// Do performs req. Non-success statuses come back as *APIError, network failures
// as *ConnectionError.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target, err := t.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	httpReq.Header.Set("Authorization", t.signer.Header(req.Method, target, contentType, body))

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	apiRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, &ConnectionError{Method: req.Method, URL: target.String(), Err: err}
	}
	apiRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	t.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"url":        target.String(),
		"status":     resp.StatusCode,
		"request_id": requestID,
		"duration":   time.Since(start).String(),
	}).Debug("MazeRunner API request")

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, data)
	}

	if req.Stream {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Method: req.Method, URL: target.String(), Err: err}
	}
	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}

	if req.Method == http.MethodDelete || resp.StatusCode == http.StatusNoContent {
		return out, nil
	}
	out.Data = data
	if req.Raw {
		return out, nil
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("unexpected content type %q", resp.Header.Get("Content-Type")),
			BadResponse: true,
		}
	}
	if !json.Valid(data) {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Message:     "response body is not valid JSON",
			BadResponse: true,
		}
	}
	return out, nil
}

// resolve joins path to the base URL and merges query into whatever query the
// path already carries. Explicit values win.
func (t *Transport) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	target := t.baseURL.ResolveReference(ref)

	merged := target.Query()
	for key, values := range query {
		merged[key] = append([]string(nil), values...)
	}
	target.RawQuery = merged.Encode()
	return target, nil
}

func encodeBody(req Request) ([]byte, string, error) {
	if len(req.Files) > 0 {
		return encodeMultipart(req)
	}
	if req.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, "application/json", nil
}

func encodeMultipart(req Request) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if req.Body != nil {
		fields, ok := req.Body.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("multipart body must be a map, got %T", req.Body)
		}
		for key, value := range fields {
			if err := w.WriteField(key, formValue(value)); err != nil {
				return nil, "", err
			}
		}
	}

	for field, path := range req.Files {
		if err := writeFilePart(w, field, path); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func formValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func pinnedTLSConfig(certPath string) (*tls.Config, error) {
	if certPath == "" {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec
	}

	pemData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("no certificates found in %s", certPath)
	}

	return &tls.Config{
		// Chain verification happens in VerifyPeerCertificate, without the name check.
		InsecureSkipVerify: true, //nolint:gosec
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyChain(roots, rawCerts)
		},
	}, nil
}

func verifyChain(roots *x509.CertPool, rawCerts [][]byte) error {
	if len(rawCerts) == 0 {
		return errors.New("server presented no certificate")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("failed to parse server certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err
}
