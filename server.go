package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/mcp-training/roomhub/api"
	"github.com/wricardo/mcp-training/roomhub/metrics"
	"github.com/wricardo/mcp-training/roomhub/realtime/config"
	"github.com/wricardo/mcp-training/roomhub/realtime/dispatch"
	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
	"github.com/wricardo/mcp-training/roomhub/realtime/persistence"
	"github.com/wricardo/mcp-training/roomhub/transport/mcp"
	"github.com/wricardo/mcp-training/roomhub/transport/websocket"
)

// roomServer bundles the hub with everything that serves it.
type roomServer struct {
	cfg     config.Config
	hub     *hub.Hub
	queue   *persistence.Queue
	handler http.Handler
	log     zerolog.Logger
}

// newRoomServer wires metrics, the verifier, the persistence queue, the hub,
// the dispatcher and the HTTP surface from cfg. baseURL is where the /mcp
// endpoint reaches the REST API.
func newRoomServer(ctx context.Context, cfg config.Config, baseURL string, logger zerolog.Logger) (*roomServer, error) {
	reg := metrics.NewRegistry()
	m := metrics.NewCollector(reg)

	verifier, err := cfg.Auth.Verifier()
	if err != nil {
		return nil, fmt.Errorf("build verifier: %w", err)
	}

	sink, err := persistence.Open(ctx, cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}

	opts := cfg.HubOptions()
	opts.Verifier = verifier
	opts.Metrics = m
	opts.Logger = logger

	var queue *persistence.Queue
	if sink != nil {
		queue = persistence.NewQueue(sink, cfg.Persistence.QueueSize, m, logger)
		opts.Hook = queue
	}

	h := hub.New(opts)
	d := dispatch.New(h, dispatch.Options{
		RequireAuth: cfg.Hub.RequireAuth,
		Heartbeat:   h.Options().LivenessPeriod,
		Metrics:     m,
		Logger:      logger,
	})
	ws := websocket.NewHandler(d, h, websocket.Options{
		SendBuffer:      cfg.Hub.SendBuffer,
		MaxMessageBytes: cfg.Hub.MaxMessageBytes,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Logger:          logger,
	})
	apiServer := api.NewServer(h, api.Options{
		WebSocket: ws,
		Metrics:   metrics.Handler(reg),
		Logger:    logger,
	})

	router := http.NewServeMux()
	router.Handle("/", apiServer)
	router.Handle("/mcp", mcpHandler(mcp.NewClient(baseURL).GetMCPServer()))

	return &roomServer{
		cfg:     cfg,
		hub:     h,
		queue:   queue,
		handler: router,
		log:     logger,
	}, nil
}

// Run serves on ln and runs the liveness monitor, the persistence queue and
// the optional tunnel until ctx is cancelled or one of them fails. Every
// connection is closed before Run returns.
func (s *roomServer) Run(ctx context.Context, ln net.Listener, tunnel bool) error {
	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("roomhub listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.hub.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("http server shutdown")
		}
		return nil
	})

	g.Go(func() error {
		s.hub.RunLiveness(gctx)
		return nil
	})

	if s.queue != nil {
		g.Go(func() error {
			return s.queue.Run(gctx)
		})
	}

	if tunnel {
		g.Go(func() error {
			return s.serveNgrok(gctx)
		})
	}

	return g.Wait()
}

// serveNgrok exposes the handler through an ngrok tunnel until ctx is done.
// A missing auth token only disables the tunnel.
func (s *roomServer) serveNgrok(ctx context.Context) error {
	authToken := ngrokAuthtoken(s.cfg.Ngrok)
	if authToken == "" {
		s.log.Warn().Msg("ngrok enabled but no auth token provided (use ngrok.authtoken, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return nil
	}

	var endpoint ngrokConfig.Tunnel
	if domain := s.cfg.Ngrok.Domain; domain != "" {
		endpoint = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		s.log.Info().Str("domain", domain).Msg("using custom ngrok domain")
	} else {
		endpoint = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, endpoint, ngrok.WithAuthtoken(authToken))
	if err != nil {
		return fmt.Errorf("start ngrok tunnel: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close ngrok tunnel")
		}
	}()

	url := tun.URL()
	s.log.Info().
		Str("url", url).
		Str("ws", url+"/ws").
		Str("api", url+"/api").
		Str("mcp", url+"/mcp").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, s.handler); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ngrok server: %w", err)
	}
	return nil
}

// ngrokAuthtoken prefers the configured token, then the environment.
func ngrokAuthtoken(cfg config.NgrokConfig) string {
	if cfg.Authtoken != "" {
		return cfg.Authtoken
	}
	if token := os.Getenv("NGROK_AUTHTOKEN"); token != "" {
		return token
	}
	return os.Getenv("NGROK_AUTH_TOKEN")
}

// mcpHandler answers single JSON-RPC messages posted to /mcp.
func mcpHandler(s *server.MCPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := s.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// apiBaseURL turns a listen address into a URL the local process can reach.
func apiBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func runServe(ctx context.Context, flags *Flags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := flags.Config
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	s, err := newRoomServer(ctx, cfg, apiBaseURL(cfg.Server.Addr), flags.Logger)
	if err != nil {
		ln.Close()
		return err
	}

	err = s.Run(ctx, ln, flags.Ngrok || cfg.Ngrok.Enabled)
	flags.Logger.Info().Msg("server stopped")
	return err
}

// runMCP serves MCP over stdio. It targets the API at flags.APIURL when it
// answers, otherwise it starts an internal server on a loopback port.
func runMCP(ctx context.Context, flags *Flags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := flags.Logger
	baseURL := flags.APIURL

	if !apiReachable(ctx, baseURL) {
		logger.Info().Str("api_url", baseURL).Msg("no roomhub API found, starting internal server")

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + ln.Addr().String()

		s, err := newRoomServer(ctx, flags.Config, baseURL, logger)
		if err != nil {
			ln.Close()
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- s.Run(runCtx, ln, false) }()
		defer func() {
			cancel()
			<-done
		}()
	}

	logger.Info().Str("api_url", baseURL).Msg("MCP stdio server ready")
	return mcp.NewClient(baseURL).ServeStdio()
}

// apiReachable reports whether a roomhub API answers its health check.
func apiReachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
