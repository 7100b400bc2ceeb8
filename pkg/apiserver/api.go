package apiserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"vpnshield/pkg/bus"
	"vpnshield/pkg/catalog"
	"vpnshield/pkg/config"
	"vpnshield/pkg/listeners"
	"vpnshield/pkg/session"
	"vpnshield/pkg/token"
)

// SessionController is the part of session.Controller the API drives.
type SessionController interface {
	Snapshot() session.Snapshot
	Select(ep catalog.Endpoint) bool
	ToggleConnection(ep *catalog.Endpoint) error
	Subscribe(observer bus.Observer[session.Snapshot]) bus.Handle
	Unsubscribe(handle bus.Handle)
}

type Service struct {
	http.Handler

	cfg     config.APIConfig
	ctrl    SessionController
	catalog *catalog.Catalog
	tokens  *token.Issuer

	lock    sync.Mutex
	servers []*http.Server
}

func New(cfg config.APIConfig, ctrl SessionController, cat *catalog.Catalog) (*Service, error) {
	name := cfg.ServerName
	if name == "" {
		name = "vpnshield"
	}
	tokens, err := token.NewIssuer(name, token.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("error creating token issuer: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		ctrl:    ctrl,
		catalog: cat,
		tokens:  tokens,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /servers", s.handleServers)
	r.HandleFunc("GET /session", s.handleSession)
	r.HandleFunc("POST /session/select", s.handleSelect)
	r.HandleFunc("POST /session/toggle", s.handleToggle)
	r.HandleFunc("GET /session/watch", s.handleWatch)

	r.HandleFunc("/admin/login", s.handleAdminLogin)
	r.HandleFunc("GET /admin/dashboard", s.authMiddleware(s.handleAdminDashboard))

	s.Handler = r

	return s, nil
}

func (s *Service) ListenAndServe() error {
	for _, listenCfg := range s.cfg.Listen {
		slog.Info("listen API", slog.String("addr", listenCfg.Addr))
		listener, err := listeners.Listen(listenCfg)
		if err != nil {
			return err
		}

		server := &http.Server{Handler: s}
		s.lock.Lock()
		s.servers = append(s.servers, server)
		s.lock.Unlock()

		go func() {
			err := server.Serve(listener)
			if err != nil {
				if errors.Is(err, http.ErrServerClosed) {
					slog.Info("server closed", slog.String("addr", listenCfg.Addr))
				} else {
					slog.Error("error serving", slog.String("addr", listenCfg.Addr), slog.Any("err", err))
				}
			}
		}()
	}

	return nil
}

// Shutdown stops every listener; open watch streams end when ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	servers := s.servers
	s.servers = nil
	s.lock.Unlock()

	var errs []error
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) authClient(r *http.Request) error {
	if len(s.cfg.Clients) > 0 {
		username, password, ok := r.BasicAuth()
		if !ok {
			return ErrUnauthorized.WithErrorMsg("Basic auth required")
		}

		found := false
		for _, client := range s.cfg.Clients {
			if client.Username == username && client.Password == password {
				found = true
				break
			}
		}

		if !found {
			return ErrUnauthorized.WithErrorMsg("Invalid username or password")
		}
	}

	return nil
}
