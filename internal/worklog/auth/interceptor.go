// Package auth authenticates callers by JWT or session token and gates every
// work-log method on the caller's role, for both gRPC and the HTTP gateway.
package auth

import (
	"context"
	"errors"
	"strings"

	e "github.com/gartstein/worklog/internal/worklog/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const servicePrefix = "/worklog.v1.WorkLogService/"

// Policy maps a full gRPC method name to the roles allowed to call it.
// Methods missing from the policy are public.
type Policy map[string][]Role

// DefaultPolicy restricts intake and acknowledgment to operatives and
// supervisors and everything else to managers.
func DefaultPolicy() Policy {
	field := []Role{RoleOperative, RoleSupervisor}
	manager := []Role{RoleManager}

	p := Policy{}
	for _, m := range []string{"SubmitWorkLog", "ListMyWorkLogs", "ConfirmWorkLogEdit", "ContestWorkLogEdit"} {
		p[servicePrefix+m] = field
	}
	for _, m := range []string{
		"RecordWorkLog", "ListWorkLogs", "GetWorkLog", "EditWorkLog", "ApproveWorkLog", "RejectWorkLog",
		"CompleteWorkLog", "ArchiveWorkLog", "ArchiveWorkLogs", "ListWorkers", "GetCostSummary",
		"PreviewInvoice", "ConfirmInvoice", "ExportInvoice",
	} {
		p[servicePrefix+m] = manager
	}
	return p
}

// Interceptor authenticates callers of protected methods and checks their role.
type Interceptor struct {
	authenticator *Authenticator
	policy        Policy
}

// NewAuthInterceptor creates an Interceptor enforcing policy.
func NewAuthInterceptor(authenticator *Authenticator, policy Policy) *Interceptor {
	return &Interceptor{
		authenticator: authenticator,
		policy:        policy,
	}
}

// Protected reports whether fullMethod requires authentication.
func (i *Interceptor) Protected(fullMethod string) bool {
	_, ok := i.policy[fullMethod]
	return ok
}

// Authorize authenticates token and checks that its role may call fullMethod.
// Errors are gRPC status errors.
func (i *Interceptor) Authorize(ctx context.Context, fullMethod, token string) (*Identity, error) {
	id, err := i.authenticator.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, e.ErrUnauthenticated) {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}
		return nil, status.Error(codes.Unavailable, "authentication unavailable")
	}
	if !allowed(i.policy[fullMethod], id.Role) {
		return nil, status.Errorf(codes.PermissionDenied, "role %q may not call %s", id.Role, strings.TrimPrefix(fullMethod, servicePrefix))
	}
	return id, nil
}

// Unary returns a gRPC unary interceptor for token validation on protected methods.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.Protected(info.FullMethod) {
			md, ok := metadata.FromIncomingContext(ctx)
			if !ok {
				return nil, status.Error(codes.Unauthenticated, "metadata missing")
			}

			tokenString, err := extractTokenFromMetadata(md)
			if err != nil {
				return nil, err
			}

			id, err := i.Authorize(ctx, info.FullMethod, tokenString)
			if err != nil {
				return nil, err
			}
			ctx = WithIdentity(ctx, id)
		}

		return handler(ctx, req)
	}
}

func allowed(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// extractTokenFromMetadata retrieves a Bearer token from gRPC metadata.
func extractTokenFromMetadata(md metadata.MD) (string, error) {
	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization header missing")
	}
	return bearerToken(authHeaders[0])
}

func bearerToken(headerValue string) (string, error) {
	if !strings.HasPrefix(headerValue, "Bearer ") {
		return "", status.Error(codes.Unauthenticated, "invalid authorization format: missing Bearer prefix")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(headerValue, "Bearer "))
	if tokenString == "" {
		return "", status.Error(codes.Unauthenticated, "invalid authorization format: empty token")
	}

	return tokenString, nil
}
