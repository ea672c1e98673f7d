package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	log.SetPrefix("nutrifit-engine: ")
	log.SetFlags(0)

	// .env is optional in production — the platform injects real env vars.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	pool := getDBPool()
	defer pool.Close()

	h := &Handler{
		db:          pool,
		store:       &pgStore{db: pool},
		recalcToken: os.Getenv("RECALC_TOKEN"),
	}
	if h.recalcToken == "" {
		log.Printf("RECALC_TOKEN not set — internal recalculation trigger disabled")
	}

	router := gin.Default()
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	router.Run(":" + port)
}
