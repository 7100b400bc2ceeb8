package apiserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"vpnshield/pkg/telemetry"
	"vpnshield/pkg/token"
	"vpnshield/templates"
)

const accessTokenCookie = "access_token"

type claimsKey struct{}

func (s *Service) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	message := ""
	if r.Method == http.MethodPost {
		username := r.FormValue("username")
		password := r.FormValue("password")
		found := false
		for _, a := range s.cfg.Admins {
			if username == a.Username && password == a.Password {
				accessToken, err := s.tokens.Issue(username)
				if err != nil {
					slog.Error("failed to create access token", slog.Any("err", err))
					ErrInternalServerError.WithErrorMsg("Failed to create access token").Handle(w)
					return
				}

				found = true
				http.SetCookie(w, &http.Cookie{
					Name:     accessTokenCookie,
					Value:    accessToken,
					Path:     "/admin",
					Expires:  time.Now().Add(s.tokens.TTL()),
					HttpOnly: true,
					Secure:   r.TLS != nil,
					SameSite: http.SameSiteStrictMode,
				})
				slog.Info("admin logged in", slog.String("username", username), slog.String("client_ip", getClientIP(r)))
				http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
				return
			}
		}
		if !found {
			slog.Warn("admin login failed", slog.String("username", username), slog.String("client_ip", getClientIP(r)))
			message = "Invalid username or password"
		}
	}

	templates.RenderTemplate(w, "admin_login.template.html", &templates.LoginParams{
		Error: message,
	})
}

func (s *Service) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(claimsKey{}).(*token.Claims)
	username := ""
	if claims != nil {
		username = claims.Subject
	}

	snap := s.ctrl.Snapshot()
	templates.RenderTemplate(w, "admin_dashboard.template.html", &templates.DashboardParams{
		ServerName: s.tokens.Name(),
		Username:   username,
		Snapshot:   snap,
		Summary:    telemetry.Summarize(snap.RecentSamples),
		Servers:    s.catalog.List(),
	})
}

func (s *Service) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(accessTokenCookie)
		if err != nil {
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}

		claims, err := s.tokens.Parse(cookie.Value)
		if err != nil {
			slog.Debug("rejected admin token", slog.Any("err", err))
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims))

		next(w, r)
	}
}
