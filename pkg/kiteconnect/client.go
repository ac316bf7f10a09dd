// Package kiteconnect is a minimal client for the Zerodha Kite trading API
// using the web enctoken flavour of authentication: a session is derived from
// user id + password + TOTP, and every call carries the resulting enctoken.
//
// Usage:
//
//	kc := kiteconnect.New(kiteconnect.Config{UserID: "AB1234"})
//	if _, err := kc.GenerateSession("AB1234", "password", totpCode); err != nil {
//		log.Fatal(err)
//	}
//	orderID, err := kc.PlaceOrder(kiteconnect.OrderParams{
//		Variety: kiteconnect.VarietyRegular, Exchange: kiteconnect.ExchangeNSE,
//		TradingSymbol: "SBIN", TransactionType: kiteconnect.TransactionTypeSell,
//		Quantity: 1, Product: kiteconnect.ProductMIS,
//		OrderType: kiteconnect.OrderTypeMarket, Validity: kiteconnect.ValidityDay,
//	})
package kiteconnect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRoot      = "https://kite.zerodha.com/oms"
	defaultLoginRoot = "https://kite.zerodha.com/api"
	kiteVersion      = "3"
)

var routes = map[string]string{
	"user.profile":        "/user/profile",
	"user.margins":        "/user/margins",
	"orders":              "/orders",
	"order.place":         "/orders/{variety}",
	"portfolio.positions": "/portfolio/positions",
	"portfolio.holdings":  "/portfolio/holdings",
}

// Config configures a Client. Zero values fall back to production endpoints.
type Config struct {
	UserID    string
	Enctoken  string
	RootURL   string
	LoginRoot string
	Timeout   time.Duration // default 7s
	Debug     bool
}

// Client is the REST side of the Kite API.
type Client struct {
	userID    string
	enctoken  string
	rootURL   string
	loginRoot string
	debug     bool

	httpClient *http.Client

	// SessionExpiryHook is invoked when the API reports TokenException,
	// letting the owner re-derive a session.
	SessionExpiryHook func()
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.LoginRoot == "" {
		cfg.LoginRoot = defaultLoginRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		userID:     cfg.UserID,
		enctoken:   cfg.Enctoken,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		loginRoot:  strings.TrimRight(cfg.LoginRoot, "/"),
		debug:      cfg.Debug,
		httpClient: &http.Client{Timeout: cfg.Timeout, Jar: jar},
	}
}

func (c *Client) UserID() string   { return c.userID }
func (c *Client) Enctoken() string { return c.enctoken }

// SetEnctoken installs a previously derived session token.
func (c *Client) SetEnctoken(tok string) { c.enctoken = tok }

// GenerateSession performs the two-step login (password, then TOTP) and
// stores the enctoken issued by the broker. Returns the account profile.
func (c *Client) GenerateSession(userID, password, totpCode string) (Profile, error) {
	reqID, err := c.loginStep(userID, password)
	if err != nil {
		return Profile{}, err
	}
	if err := c.twofaStep(userID, reqID, totpCode); err != nil {
		return Profile{}, err
	}
	c.userID = userID
	return c.Profile()
}

func (c *Client) loginStep(userID, password string) (string, error) {
	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("password", password)

	resp, err := c.httpClient.PostForm(c.loginRoot+"/login", form)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			RequestID string `json:"request_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("login decode: %w", err)
	}
	if env.Status != "success" || env.Data.RequestID == "" {
		return "", fmt.Errorf("login rejected: %s", env.Message)
	}
	return env.Data.RequestID, nil
}

func (c *Client) twofaStep(userID, requestID, totpCode string) error {
	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("request_id", requestID)
	form.Set("twofa_value", totpCode)
	form.Set("twofa_type", "totp")

	resp, err := c.httpClient.PostForm(c.loginRoot+"/twofa", form)
	if err != nil {
		return fmt.Errorf("twofa request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, ck := range resp.Cookies() {
		if ck.Name == "enctoken" && ck.Value != "" {
			c.enctoken = ck.Value
			return nil
		}
	}
	return errors.New("twofa rejected: no enctoken issued")
}

// ---- Typed endpoints ----

func (c *Client) Profile() (Profile, error) {
	var p Profile
	err := c.doRequest(http.MethodGet, "user.profile", nil, nil, &p)
	return p, err
}

func (c *Client) Margins() (Margins, error) {
	var m Margins
	err := c.doRequest(http.MethodGet, "user.margins", nil, nil, &m)
	return m, err
}

func (c *Client) Orders() ([]Order, error) {
	var out []Order
	err := c.doRequest(http.MethodGet, "orders", nil, nil, &out)
	return out, err
}

func (c *Client) Positions() (Positions, error) {
	var out Positions
	err := c.doRequest(http.MethodGet, "portfolio.positions", nil, nil, &out)
	return out, err
}

func (c *Client) Holdings() ([]Holding, error) {
	var out []Holding
	err := c.doRequest(http.MethodGet, "portfolio.holdings", nil, nil, &out)
	return out, err
}

// PlaceOrder submits an order and returns the broker order id.
func (c *Client) PlaceOrder(p OrderParams) (string, error) {
	variety := p.Variety
	if variety == "" {
		variety = VarietyRegular
	}
	form := url.Values{}
	form.Set("exchange", p.Exchange)
	form.Set("tradingsymbol", p.TradingSymbol)
	form.Set("transaction_type", p.TransactionType)
	form.Set("quantity", strconv.Itoa(p.Quantity))
	form.Set("product", p.Product)
	form.Set("order_type", p.OrderType)
	form.Set("validity", p.Validity)
	if p.Price > 0 {
		form.Set("price", strconv.FormatFloat(p.Price, 'f', 2, 64))
	}
	if p.Tag != "" {
		form.Set("tag", p.Tag)
	}

	var data struct {
		OrderID string `json:"order_id"`
	}
	err := c.doRequest(http.MethodPost, "order.place", map[string]string{"variety": variety}, form, &data)
	if err != nil {
		return "", err
	}
	if data.OrderID == "" {
		return "", errors.New("place order: empty order_id in response")
	}
	return data.OrderID, nil
}

// ---- Request plumbing ----

type apiEnvelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) buildURL(route string, args map[string]string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	for k, v := range args {
		uri = strings.ReplaceAll(uri, "{"+k+"}", v)
	}
	return c.rootURL + uri, nil
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Kite-Version", kiteVersion)
	h.Set("User-Agent", "breakout-trader/1.0")
	if c.enctoken != "" {
		h.Set("Authorization", "enctoken "+c.enctoken)
	}
	return h
}

func (c *Client) doRequest(method, route string, args map[string]string, form url.Values, out any) error {
	fullURL, err := c.buildURL(route, args)
	if err != nil {
		return err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, fullURL, body)
	if err != nil {
		return err
	}
	req.Header = c.requestHeaders()
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if c.debug {
		log.Printf("[kiteconnect] %s %s form=%v", method, fullURL, form)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, route, err)
	}
	if c.debug {
		log.Printf("[kiteconnect] response code=%d body=%s", resp.StatusCode, raw)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: parse response (code %d): %w", method, route, resp.StatusCode, err)
	}
	if env.Status != "success" {
		if env.ErrorType == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		if env.ErrorType != "" {
			return fmt.Errorf("%s: %s", env.ErrorType, env.Message)
		}
		return fmt.Errorf("%s %s failed: %s", method, route, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, route, err)
		}
	}
	return nil
}
