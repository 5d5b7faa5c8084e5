package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"davgate/internal/auth"
	"davgate/internal/dav"
	"davgate/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebDAV gateway",
	Long:  `Start the davgate HTTP server.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (env: DAVGATE_SERVER_LISTEN)")
	serveCmd.Flags().String("backend", "", "object store backend: local, minio (env: DAVGATE_STORE_BACKEND)")
	serveCmd.Flags().String("data-dir", "", "directory for the local backend (env: DAVGATE_STORE_DATA_DIR)")

	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("store.backend", serveCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("store.data_dir", serveCmd.Flags().Lookup("data-dir"))

	rootCmd.AddCommand(serveCmd)
}

// buildStore constructs the configured object store backend.
func buildStore(ctx context.Context) (store.Store, func() error, error) {
	backend := viper.GetString("store.backend")

	switch backend {
	case "local":
		dataDir, err := filepath.Abs(viper.GetString("store.data_dir"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}

		local, err := store.NewLocal(dataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open local store: %w", err)
		}

		slog.Info("Using local object store", "data_dir", dataDir)
		return local, local.Close, nil

	case "minio":
		remote, err := store.NewMinio(ctx, store.MinioConfig{
			Endpoint:        viper.GetString("minio.endpoint"),
			AccessKeyID:     viper.GetString("minio.access_key"),
			SecretAccessKey: viper.GetString("minio.secret_key"),
			Bucket:          viper.GetString("minio.bucket"),
			Secure:          viper.GetBool("minio.secure"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to minio: %w", err)
		}

		slog.Info("Using minio object store", "endpoint", viper.GetString("minio.endpoint"), "bucket", viper.GetString("minio.bucket"))
		return remote, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// buildAuthenticator assembles the request authentication gate; it returns
// nil when no credentials are configured.
func buildAuthenticator() auth.AuthEngine {
	username := viper.GetString("auth.username")
	password := viper.GetString("auth.password")
	if username == "" {
		return nil
	}

	return auth.NewCompoundAuthEngine(
		auth.NewBasicAuthEngine(username, password),
	)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backingStore, closeStore, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	server, err := dav.NewServer(dav.Config{
		Store:          backingStore,
		Authenticator:  buildAuthenticator(),
		Realm:          viper.GetString("server.realm"),
		AllowedOrigins: viper.GetStringSlice("server.allowed_origins"),
	})
	if err != nil {
		return fmt.Errorf("failed to create davgate server: %w", err)
	}

	router := server.Handler()

	certFile := viper.GetString("server.cert_file")
	keyFile := viper.GetString("server.key_file")

	httpServer := &http.Server{
		Addr:              viper.GetString("server.listen"),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	httpsServer := &http.Server{
		TLSConfig: &tls.Config{
			ClientAuth: tls.RequestClientCert,
			MinVersion: tls.VersionTLS12,
		},
		Addr:              viper.GetString("server.tls_listen"),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		<-ctx.Done()
		return httpsServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		if certFile == "" || keyFile == "" {
			slog.Debug("Skipping HTTPS service because no certificate was provided")
			return nil
		}

		slog.Info("Starting davgate HTTPS server", "addr", httpsServer.Addr)
		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		slog.Info("Starting davgate HTTP server", "addr", httpServer.Addr)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Davgate started")
	return eg.Wait()
}
