// This is a **mock authentication service**, issuing JWT tokens for the
// work-log service so that callers can act as a user of a company.
//
//	GET /token?user_id=10&company_id=1&role=operative&name=Ana
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gartstein/worklog/internal/worklog/auth"
)

const (
	defaultPort   = "8081"       // Default port for the authentication service
	defaultSecret = "jwt_secret" // Secret for signing JWT
	tokenTTL      = 24 * time.Hour
)

// TokenResponse represents the response structure
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func uintParam(r *http.Request, name string, fallback uint) (uint, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return 0, strconv.ErrSyntax
	}
	return uint(n), nil
}

// tokenHandler generates a JWT for the requested identity and returns it in JSON response
func tokenHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uintParam(r, "user_id", 12345)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		companyID, err := uintParam(r, "company_id", 1)
		if err != nil {
			http.Error(w, "invalid company_id", http.StatusBadRequest)
			return
		}
		role := auth.ParseRole(r.URL.Query().Get("role"))
		switch role {
		case "":
			role = auth.RoleManager
		case auth.RoleManager, auth.RoleOperative, auth.RoleSupervisor:
		default:
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}

		token, err := auth.GenerateToken(auth.Identity{
			UserID:    userID,
			CompanyID: companyID,
			Role:      role,
			Name:      r.URL.Query().Get("name"),
		}, secret, tokenTTL)
		if err != nil {
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		resp := TokenResponse{Token: token, ExpiresAt: time.Now().Add(tokenTTL).UTC()}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, "Failed to encode token", http.StatusInternalServerError)
		}
	}
}

func main() {
	secret := os.Getenv("WORKLOG_JWT_SECRET")
	if secret == "" {
		secret = defaultSecret
	}
	port := os.Getenv("AUTH_PORT")
	if port == "" {
		port = defaultPort
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(secret))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Authentication service running on port %s", port)
	log.Fatal(srv.ListenAndServe())
}
