package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/arenaops/bracket-engine/config"
	"github.com/arenaops/bracket-engine/db"
	"github.com/arenaops/bracket-engine/live"
	"github.com/arenaops/bracket-engine/repositories"
	"github.com/arenaops/bracket-engine/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	if cfg.AutoMigrate {
		if err := db.MigrateUp(dbConn, cfg.MigrationsPath); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.String("path", cfg.MigrationsPath))
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := live.NewHub(logger)
	go hub.Run(hubCtx)
	logger.Info("live feed hub started")

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	logger.Info("repositories initialized")

	rosterService := services.NewRosterService(teamRepo, tournamentRepo)
	tournamentService := services.NewTournamentService(tournamentRepo, teamRepo, matchRepo, hub, logger, nil)
	matchService := services.NewMatchService(matchRepo, teamRepo, tournamentRepo, tournamentService, hub, services.NopDisputeSink{}, logger)
	logger.Info("services initialized")

	// Read-only views back the live feed: clients fetch the current state
	// here, then follow deltas over the websocket.
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := tournamentIDParam(w, r)
			if !ok {
				return
			}
			hub.ServeWS(w, r, tournamentID)
		})
		r.Get("/bracket", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := tournamentIDParam(w, r)
			if !ok {
				return
			}
			bracket, err := tournamentService.GetBracket(r.Context(), tournamentID)
			if err != nil {
				writeViewError(w, err)
				return
			}
			writeJSON(w, bracket)
		})
		r.Get("/teams", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := tournamentIDParam(w, r)
			if !ok {
				return
			}
			teams, err := rosterService.ListTeams(r.Context(), tournamentID)
			if err != nil {
				writeViewError(w, err)
				return
			}
			writeJSON(w, teams)
		})
		r.Get("/matches", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := tournamentIDParam(w, r)
			if !ok {
				return
			}
			matches, err := matchService.ListByTournament(r.Context(), tournamentID, nil, nil)
			if err != nil {
				writeViewError(w, err)
				return
			}
			writeJSON(w, matches)
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	stopHub()
	logger.Info("application exited")
}

func tournamentIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	tournamentID, err := strconv.Atoi(chi.URLParam(r, "tournamentID"))
	if err != nil || tournamentID <= 0 {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return 0, false
	}
	return tournamentID, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeViewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrTournamentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
