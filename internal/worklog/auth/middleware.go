package auth

import (
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware guards an HTTP gateway route that serves fullMethod with the
// same authentication and role policy as the gRPC interceptor.
func (i *Interceptor) HTTPMiddleware(fullMethod string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.Protected(fullMethod) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := extractTokenFromHeader(r)
		if err != nil {
			writeError(w, err)
			return
		}

		id, err := i.Authorize(r.Context(), fullMethod, tokenString)
		if err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Authenticated guards routes that need any valid caller, regardless of role.
func (i *Interceptor) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractTokenFromHeader(r)
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := i.authenticator.Authenticate(r.Context(), tokenString)
		if err != nil {
			writeError(w, status.Error(codes.Unauthenticated, "invalid token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func extractTokenFromHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", status.Error(codes.Unauthenticated, "authorization header required")
	}
	return bearerToken(authHeader)
}

func writeError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(err)
	http.Error(w, st.Message(), runtime.HTTPStatusFromCode(st.Code()))
}
