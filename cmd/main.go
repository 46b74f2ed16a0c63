package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/ufaas-io/payment-gobackend/internal/clients"
	"github.com/ufaas-io/payment-gobackend/internal/db"
	"github.com/ufaas-io/payment-gobackend/internal/handlers"
	"github.com/ufaas-io/payment-gobackend/internal/services"
)

func main() {
	// Load .env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	// Connect to MongoDB
	uri := os.Getenv("MONGOURI")
	if uri == "" {
		log.Fatal("MONGOURI environment variable not set")
	}
	client, err := db.Connect(context.Background(), uri)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	log.Println("Successfully connected to MongoDB")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	database := client.Database("paymentdb")

	// Verification lease; without Redis the orchestrator falls back to
	// first-success-wins semantics.
	var locks services.Locker
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		locker, err := services.NewRedisLocker(redisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer locker.Close()
		locks = locker
	} else {
		log.Println("REDIS_URL not set, verify passes run without a lease")
	}

	basePath := os.Getenv("BASE_PATH")
	if basePath == "" {
		basePath = "/api"
	}

	// Initialize services and handlers
	store := services.NewMongoPaymentStore(database)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}
	cancel()

	businessService := services.NewBusinessService(database)
	paymentService := services.NewPaymentService(
		store,
		clients.NewHTTPGatewayClient(),
		clients.NewHTTPWalletClient(),
		locks,
		basePath,
	)
	// Read after godotenv so an .env-supplied secret is picked up.
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Println("JWT_SECRET not set, bearer tokens will be rejected")
	}
	paymentHandler := handlers.NewPaymentHandler(paymentService, businessService, []byte(jwtSecret), os.Getenv("BUSINESS_NAME"))

	// Set up router
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	api := router.PathPrefix(basePath).Subrouter()
	api.HandleFunc("/payments", paymentHandler.CreatePayment).Methods("POST")
	api.HandleFunc("/payments", paymentHandler.GetPayments).Methods("GET")
	api.HandleFunc("/payments/start", paymentHandler.StartDirectPayment).Methods("GET")
	api.HandleFunc("/payments/{paymentID}", paymentHandler.GetPayment).Methods("GET")
	api.HandleFunc("/payments/{paymentID}/start", paymentHandler.StartPayment).Methods("GET")
	api.HandleFunc("/payments/{paymentID}/verify", paymentHandler.VerifyPayment).Methods("GET", "POST")

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("Server running on port %s", port)
	log.Fatal(server.ListenAndServe())
}
