package venstar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default per-request bounds. The device is slow to answer reads.
const (
	DefaultReadTimeout  = 6 * time.Second
	DefaultWriteTimeout = 4 * time.Second

	maxBodyBytes = 1 << 20
)

const (
	pathRoot     = "/"
	pathInfo     = "/query/info"
	pathSensors  = "/query/sensors"
	pathAlerts   = "/query/alerts"
	pathRuntimes = "/query/runtimes"
	pathControl  = "/control"
	pathSettings = "/settings"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeouts overrides the read and write bounds.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Client) {
		if read > 0 {
			c.readTimeout = read
		}
		if write > 0 {
			c.writeTimeout = write
		}
	}
}

// WithScheme sets the URL scheme, "http" unless overridden.
func WithScheme(scheme string) Option {
	return func(c *Client) { c.scheme = scheme }
}

// Client talks to a single thermostat.
//
// Thread Safety: All methods are safe for concurrent use. The device itself
// handles one request at a time, so callers should avoid overlapping calls.
type Client struct {
	host         string
	scheme       string
	httpClient   *http.Client
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewClient returns a client for the thermostat at host ("ip" or "ip:port").
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		host:         host,
		scheme:       "http",
		httpClient:   &http.Client{},
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the endpoint this client is bound to.
func (c *Client) Host() string {
	return c.host
}

// APIInfo reads GET /.
func (c *Client) APIInfo(ctx context.Context) (APIInfo, error) {
	var info APIInfo
	err := c.get(ctx, pathRoot, &info)
	return info, err
}

// Probe merges GET / and GET /query/info into an Identity. A device that
// is not residential yields ErrUnsupportedType along with what was read.
func (c *Client) Probe(ctx context.Context) (Identity, error) {
	info, err := c.APIInfo(ctx)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{APIInfo: info}
	if info.Type != TypeResidential {
		return id, fmt.Errorf("%w: %q", ErrUnsupportedType, info.Type)
	}
	st, err := c.Info(ctx)
	if err != nil {
		return id, err
	}
	id.Name = st.Name
	id.TempUnits = st.TempUnits
	return id, nil
}

// Info reads GET /query/info.
func (c *Client) Info(ctx context.Context) (State, error) {
	var st State
	err := c.get(ctx, pathInfo, &st)
	return st, err
}

// FetchState returns the short-cycle snapshot.
func (c *Client) FetchState(ctx context.Context) (State, error) {
	return c.Info(ctx)
}

// Sensors reads GET /query/sensors.
func (c *Client) Sensors(ctx context.Context) ([]Sensor, error) {
	var body struct {
		Sensors []Sensor `json:"sensors"`
	}
	if err := c.get(ctx, pathSensors, &body); err != nil {
		return nil, err
	}
	return body.Sensors, nil
}

// Alerts reads GET /query/alerts.
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var body struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := c.get(ctx, pathAlerts, &body); err != nil {
		return nil, err
	}
	return body.Alerts, nil
}

// Runtimes reads GET /query/runtimes.
func (c *Client) Runtimes(ctx context.Context) ([]Runtime, error) {
	var body struct {
		Runtimes []Runtime `json:"runtimes"`
	}
	if err := c.get(ctx, pathRuntimes, &body); err != nil {
		return nil, err
	}
	return body.Runtimes, nil
}

// FetchSensorsAndAlerts reads sensors, alerts and runtimes. Sections that fail are
// left out; an error is returned only when every read failed, and then it
// is the first failure.
func (c *Client) FetchSensorsAndAlerts(ctx context.Context) (Extended, error) {
	var ext Extended
	var errs []error

	sensors, err := c.Sensors(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		ext.Sensors, ext.HasSensors = sensors, true
	}

	alerts, err := c.Alerts(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		ext.Alerts, ext.HasAlerts = alerts, true
	}

	runtimes, err := c.Runtimes(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		ext.Runtimes = runtimes
	}

	if len(errs) == 3 {
		return ext, errs[0]
	}
	return ext, nil
}

// SetControl posts to /control. Only non-nil fields are sent.
func (c *Client) SetControl(ctx context.Context, ctl Control) error {
	params := url.Values{}
	if ctl.Mode != nil {
		params.Set("mode", strconv.Itoa(int(*ctl.Mode)))
	}
	if ctl.Fan != nil {
		params.Set("fan", strconv.Itoa(int(*ctl.Fan)))
	}
	if ctl.HeatTemp != nil {
		params.Set("heattemp", formatTemp(*ctl.HeatTemp))
	}
	if ctl.CoolTemp != nil {
		params.Set("cooltemp", formatTemp(*ctl.CoolTemp))
	}
	return c.post(ctx, pathControl, params)
}

// SetSettings posts a single value to /settings.
func (c *Client) SetSettings(ctx context.Context, s Setting, value int) error {
	params := url.Values{}
	params.Set(string(s), strconv.Itoa(value))
	return c.post(ctx, pathSettings, params)
}

// SendCommand performs one Write.
func (c *Client) SendCommand(ctx context.Context, w Write) error {
	if w.Control != nil {
		return c.SetControl(ctx, *w.Control)
	}
	if w.Setting == "" {
		return ErrEmptyWrite
	}
	return c.SetSettings(ctx, w.Setting, w.Value)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, nil), nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrDeviceUnreachable, err)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrDeviceUnreachable, path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, params url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path, params), nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrDeviceUnreachable, err)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	return checkRejected(body)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrDeviceUnreachable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized:
		return nil, ErrDeviceLocked
	default:
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrDeviceUnreachable, req.Method, req.URL.Path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrDeviceUnreachable, err)
	}
	return body, nil
}

func (c *Client) url(path string, params url.Values) string {
	u := url.URL{Scheme: c.scheme, Host: c.host, Path: path}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// checkRejected maps a {"error":true,"reason":"..."} body to *RejectedError.
func checkRejected(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var resp struct {
		Error  json.RawMessage `json:"error"`
		Reason string          `json:"reason"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		// Some firmware answers writes with plain text.
		return nil
	}
	if len(resp.Error) == 0 || string(resp.Error) == "false" || string(resp.Error) == "null" {
		return nil
	}
	reason := resp.Reason
	if reason == "" {
		reason = "unspecified"
	}
	return &RejectedError{Reason: reason}
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// IsTransient reports whether err is worth retrying on the next cycle.
func IsTransient(err error) bool {
	return errors.Is(err, ErrDeviceUnreachable)
}
