package entropy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/dice-oracle/internal/httputil"
)

const (
	// DefaultQRNGURL is the ANU quantum random numbers endpoint for one uint8.
	DefaultQRNGURL = "https://qrng.anu.edu.au/API/jsonI.php?length=1&type=uint8"

	// DefaultQRNGTimeout bounds a single remote fetch.
	DefaultQRNGTimeout = 3 * time.Second

	maxQRNGResponseBytes = 16 << 10
)

// QRNGConfig configures the remote quantum randomness client.
type QRNGConfig struct {
	URL     string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// QRNGClient fetches single random bytes from a remote QRNG service that
// answers {"success": bool, "data": [uint8, ...]}.
type QRNGClient struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewQRNGClient creates a new QRNG client.
func NewQRNGClient(cfg QRNGConfig) *QRNGClient {
	url := cfg.URL
	if url == "" {
		url = DefaultQRNGURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultQRNGTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httputil.NewClient(timeout)
	}
	return &QRNGClient{
		url:        url,
		timeout:    timeout,
		httpClient: client,
	}
}

// FetchByte returns one byte of remote randomness. Every failure is a *FetchError.
func (c *QRNGClient) FetchByte(ctx context.Context) (byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := httputil.Get(ctx, c.httpClient, c.url, maxQRNGResponseBytes)
	if err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) {
			return 0, &FetchError{Reason: ReasonStatus, Err: err}
		}
		return 0, &FetchError{Reason: ReasonTransport, Err: err}
	}

	return parseQRNGPayload(body)
}

func parseQRNGPayload(body []byte) (byte, error) {
	if !gjson.ValidBytes(body) {
		return 0, &FetchError{Reason: ReasonPayload, Err: errors.New("invalid json")}
	}

	if success := gjson.GetBytes(body, "success"); success.Type != gjson.True {
		return 0, &FetchError{Reason: ReasonUnsuccessful, Err: fmt.Errorf("success=%s", success.Raw)}
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return 0, &FetchError{Reason: ReasonPayload, Err: errors.New("data is not an array")}
	}
	first := data.Get("0")
	if first.Type != gjson.Number {
		return 0, &FetchError{Reason: ReasonPayload, Err: errors.New("data[0] missing or not a number")}
	}
	n := first.Float()
	if n != float64(int64(n)) || n < 0 || n > 255 {
		return 0, &FetchError{Reason: ReasonPayload, Err: fmt.Errorf("data[0]=%s out of uint8 range", first.Raw)}
	}
	return byte(n), nil
}
