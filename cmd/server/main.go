package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/miquangngwork/english-blossom2/internal/auth"
	"github.com/miquangngwork/english-blossom2/internal/database"
	"github.com/miquangngwork/english-blossom2/internal/generator"
	"github.com/miquangngwork/english-blossom2/internal/middleware"
	"github.com/miquangngwork/english-blossom2/internal/placement"
	"github.com/miquangngwork/english-blossom2/internal/profile"
	"github.com/rs/cors"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Stores and services
	userStore := auth.NewStore(db)
	profileStore := profile.NewStore(db)
	placementStore := placement.NewStore(db)
	itemSource := generator.NewGenerator()
	placementService := placement.NewService(placementStore, itemSource, profileStore)

	// Handlers
	authHandler := auth.NewHandler(userStore, profileStore)
	profileHandler := profile.NewHandler(profileStore, userStore)
	placementHandler := placement.NewHandler(placementService)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware)
	protected.HandleFunc("/auth/change-password", authHandler.ChangePassword).Methods("POST")
	protected.HandleFunc("/me", profileHandler.Me).Methods("GET")
	protected.HandleFunc("/onboarding/survey", profileHandler.Survey).Methods("POST")
	protected.HandleFunc("/placement/start", placementHandler.Start).Methods("POST")
	protected.HandleFunc("/placement/next", placementHandler.Next).Methods("POST")
	protected.HandleFunc("/placement/status", placementHandler.Status).Methods("GET")
	protected.HandleFunc("/placement/result", placementHandler.Result).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
