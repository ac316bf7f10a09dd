package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"breakout-trader/internal/auth"
	"breakout-trader/internal/notification"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin validates the dashboard credentials, derives a broker session
// and issues the auth cookie. The broker login happens inline so a failed
// TOTP exchange is surfaced to the caller immediately.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Request body is required")
		return
	}
	if req.Username == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	acct, ok := s.cfg.Users.Verify(req.Username, req.Password)
	if !ok {
		fail(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	profile, err := s.cfg.Sessions.Login(acct.BrokerCredentials())
	if err != nil {
		log.Printf("[api] broker login for %s failed: %v", req.Username, err)
		failErr(w, err)
		return
	}

	token, err := s.cfg.Issuer.Issue(req.Username, time.Now())
	if err != nil {
		fail(w, http.StatusInternalServerError, "session token issue failed")
		return
	}
	auth.SetCookie(w, token, s.cfg.Issuer.TTL())

	s.cfg.State.SetLogin(req.Username, profile.UserID, profile.UserName)
	log.Printf("[api] %s logged in (broker account %s)", req.Username, profile.UserID)
	s.notify(r.Context(), notification.LoginSuccess(req.Username, profile.UserName))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"message":         "Login successful",
		"zerodha_profile": profile.UserName,
	})
}

// handleLogout clears the cookie and both session layers. A run still in
// flight is stopped; the alert warns about it either way.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	stillRunning := s.cfg.State.IsRunning()
	auth.ClearCookie(w)
	s.notify(r.Context(), notification.Logout(stillRunning))
	if stillRunning {
		s.cfg.Engine.Stop()
	}
	s.cfg.State.ClearLogin()
	s.cfg.Sessions.Logout()
	log.Printf("[api] logged out (trading was running: %v)", stillRunning)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

// handleCheckSession reports the login state the frontend restores from.
// The broker session is probed live: a cached gateway whose profile call
// fails has expired server-side.
func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	username := ""
	loggedIn := false
	if c, err := r.Cookie(auth.CookieName); err == nil {
		if sub, err := s.cfg.Issuer.Verify(c.Value); err == nil {
			username, loggedIn = sub, true
		}
	}
	if !loggedIn {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"logged_in":      false,
			"username":       nil,
			"zerodha_status": "Disconnected",
		})
		return
	}

	brokerStatus := "Disconnected"
	if gw, ok := s.cfg.Sessions.Current(); ok {
		if _, err := gw.Profile(); err != nil {
			brokerStatus = "Expired"
		} else {
			brokerStatus = "Connected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"logged_in":      true,
		"username":       username,
		"zerodha_status": brokerStatus,
	})
}

// handleTestAlert pushes a test message plus the current data files through
// the notification channel so the operator can verify delivery end to end.
func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	log.Printf("[api] sending test alert")
	s.notify(ctx, notification.TestAlert())

	if path, err := s.exportWatchlistCSV(); err != nil {
		log.Printf("[api] WARNING: watchlist export failed: %v", err)
	} else {
		s.sendFile(ctx, path, "📊 Stocks Database (CSV)")
		os.Remove(path)
	}
	if s.cfg.SnapshotPath != "" {
		s.sendFile(ctx, s.cfg.SnapshotPath, "🧠 Eligibility State (JSON)")
	}
	s.notify(ctx, notification.EODReport())

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) notify(ctx context.Context, a notification.Alert) {
	if s.cfg.Notifier == nil {
		return
	}
	if err := s.cfg.Notifier.Send(ctx, a); err != nil {
		log.Printf("[api] WARNING: notification failed: %v", err)
	}
}

func (s *Server) sendFile(ctx context.Context, path, caption string) {
	if s.cfg.Notifier == nil {
		return
	}
	if err := s.cfg.Notifier.SendFile(ctx, path, caption); err != nil {
		log.Printf("[api] WARNING: sending %s failed: %v", path, err)
	}
}

// exportWatchlistCSV dumps the full watchlist to a temp file for the
// test-alert document upload. The caller removes the file.
func (s *Server) exportWatchlistCSV() (string, error) {
	rows, err := s.cfg.Watchlist.List("")
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "watchlist-*.csv")
	if err != nil {
		return "", err
	}
	cw := csv.NewWriter(f)
	cw.Write([]string{"symbol", "instrument_token", "high", "low", "date"})
	for _, row := range rows {
		cw.Write([]string{
			row.Symbol,
			strconv.FormatUint(uint64(row.Token), 10),
			strconv.FormatFloat(row.High, 'f', -1, 64),
			strconv.FormatFloat(row.Low, 'f', -1, 64),
			row.Date,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
