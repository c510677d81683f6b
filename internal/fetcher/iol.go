package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"caucion-alerts/internal/alerting"
)

const (
	tokenPath     = "/token"
	caucionesPath = "/api/v2/Cotizaciones/Cauciones/argentina"
)

// IOLOptions parameterise the InvertirOnline client.
type IOLOptions struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// IOL fetches caución quotes from the InvertirOnline API.
type IOL struct {
	opts    IOLOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	tokenMux    sync.Mutex
	accessToken string
}

// NewIOL constructs an IOL client.
func NewIOL(opts IOLOptions, logger zerolog.Logger) *IOL {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.invertironline.com"
	}

	return &IOL{
		opts:    opts,
		logger:  logger.With().Str("component", "iol_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchRates retrieves all quoted cauciones and maps them into a snapshot
// keyed by (days, rate type). An expired token is refreshed once; a second
// 401 is treated as an authentication failure.
func (c *IOL) FetchRates(ctx context.Context) (alerting.Snapshot, error) {
	if c.opts.Username == "" || c.opts.Password == "" {
		return alerting.Snapshot{}, fmt.Errorf("%w: credentials not configured", ErrAuth)
	}

	token, err := c.token(ctx, false)
	if err != nil {
		return alerting.Snapshot{}, err
	}

	payload, status, err := c.getCauciones(ctx, token)
	if err != nil {
		return alerting.Snapshot{}, err
	}

	if status == http.StatusUnauthorized {
		token, err = c.token(ctx, true)
		if err != nil {
			return alerting.Snapshot{}, err
		}
		payload, status, err = c.getCauciones(ctx, token)
		if err != nil {
			return alerting.Snapshot{}, err
		}
		if status == http.StatusUnauthorized {
			return alerting.Snapshot{}, fmt.Errorf("%w: token rejected after refresh", ErrAuth)
		}
	}

	if status != http.StatusOK {
		return alerting.Snapshot{}, fmt.Errorf("%w: cauciones endpoint returned %d", ErrTransient, status)
	}

	var quotes []caucionQuote
	if err := json.Unmarshal(payload, &quotes); err != nil {
		return alerting.Snapshot{}, fmt.Errorf("%w: decode cauciones response: %v", ErrTransient, err)
	}

	snap := alerting.NewSnapshot(time.Now().UTC())
	for _, q := range quotes {
		days, ok := q.days()
		if !ok {
			continue
		}
		if rate, ok := q.rate(alerting.RateColocador); ok {
			snap.Set(days, alerting.RateColocador, rate)
		}
		if rate, ok := q.rate(alerting.RateTomador); ok {
			snap.Set(days, alerting.RateTomador, rate)
		}
	}

	if snap.Len() == 0 {
		return alerting.Snapshot{}, fmt.Errorf("%w: cauciones response contained no usable rates", ErrTransient)
	}

	c.logger.Debug().Int("rates", snap.Len()).Msg("cauciones snapshot fetched")
	return snap, nil
}

func (c *IOL) token(ctx context.Context, force bool) (string, error) {
	c.tokenMux.Lock()
	defer c.tokenMux.Unlock()

	if c.accessToken != "" && !force {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("username", c.opts.Username)
	form.Set("password", c.opts.Password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read token response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrAuth, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrTransient, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(payload, &tok); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrTransient, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", ErrAuth)
	}

	c.accessToken = tok.AccessToken
	return c.accessToken, nil
}

func (c *IOL) getCauciones(ctx context.Context, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+caucionesPath, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read cauciones response: %v", ErrTransient, err)
	}
	return payload, resp.StatusCode, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// caucionQuote tolerates the field name variants the API is known to use for
// the same value.
type caucionQuote struct {
	Plazo           *int     `json:"plazo"`
	DiasVencimiento *int     `json:"diasVencimiento"`
	CantidadDias    *int     `json:"cantidadDias"`
	TasaColocadora  *float64 `json:"tasaColocadora"`
	TasaTomadora    *float64 `json:"tasaTomadora"`
	PrecioCompra    *float64 `json:"precioCompra"`
	PrecioVenta     *float64 `json:"precioVenta"`
	Puntas          *struct {
		PrecioCompra *float64 `json:"precioCompra"`
		PrecioVenta  *float64 `json:"precioVenta"`
	} `json:"puntas"`
}

func (q caucionQuote) days() (int, bool) {
	for _, v := range []*int{q.Plazo, q.DiasVencimiento, q.CantidadDias} {
		if v != nil && *v > 0 {
			return *v, true
		}
	}
	return 0, false
}

func (q caucionQuote) rate(t alerting.RateType) (decimal.Decimal, bool) {
	var candidates []*float64
	switch t {
	case alerting.RateColocador:
		candidates = []*float64{q.TasaColocadora, q.PrecioCompra}
		if q.Puntas != nil {
			candidates = append(candidates, q.Puntas.PrecioCompra)
		}
	case alerting.RateTomador:
		candidates = []*float64{q.TasaTomadora, q.PrecioVenta}
		if q.Puntas != nil {
			candidates = append(candidates, q.Puntas.PrecioVenta)
		}
	}
	for _, v := range candidates {
		if v != nil {
			return decimal.NewFromFloat(*v), true
		}
	}
	return decimal.Decimal{}, false
}

var _ RateFetcher = (*IOL)(nil)
