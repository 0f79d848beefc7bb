package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gartstein/worklog/internal/worklog/auth"
	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type route struct {
	method  string
	pattern string
	rpc     string
}

// routes are registered in order. The gateway mux matches the most recently
// registered pattern first, so literal segments come after {id}.
var routes = []route{
	{http.MethodGet, "/v1/worklogs/{id}", "GetWorkLog"},
	{http.MethodPatch, "/v1/worklogs/{id}", "EditWorkLog"},
	{http.MethodPost, "/v1/worklogs/{id}/approve", "ApproveWorkLog"},
	{http.MethodPost, "/v1/worklogs/{id}/reject", "RejectWorkLog"},
	{http.MethodPost, "/v1/worklogs/{id}/complete", "CompleteWorkLog"},
	{http.MethodPost, "/v1/worklogs/{id}/confirm", "ConfirmWorkLogEdit"},
	{http.MethodPost, "/v1/worklogs/{id}/contest", "ContestWorkLogEdit"},
	{http.MethodPost, "/v1/worklogs/{id}/archive", "ArchiveWorkLog"},
	{http.MethodPost, "/v1/worklogs", "SubmitWorkLog"},
	{http.MethodPost, "/v1/worklogs/record", "RecordWorkLog"},
	{http.MethodGet, "/v1/worklogs", "ListWorkLogs"},
	{http.MethodGet, "/v1/worklogs/workers", "ListWorkers"},
	{http.MethodGet, "/v1/worklogs/costs", "GetCostSummary"},
	{http.MethodGet, "/v1/worklogs/mine", "ListMyWorkLogs"},
	{http.MethodPost, "/v1/worklogs/archive-bulk", "ArchiveWorkLogs"},
	{http.MethodPost, "/v1/invoices/preview", "PreviewInvoice"},
	{http.MethodPost, "/v1/invoices/confirm", "ConfirmInvoice"},
	{http.MethodPost, "/v1/invoices/export", "ExportInvoice"},
}

// Gateway serves the WorkLogService as REST on a grpc-gateway ServeMux,
// calling the handler in-process.
type Gateway struct {
	mux           *runtime.ServeMux
	handler       *WorkLogHandler
	authenticator *auth.Authenticator
}

// NewGateway registers every route, session management and the health check.
func NewGateway(h *WorkLogHandler, interceptor *auth.Interceptor, authenticator *auth.Authenticator) (*Gateway, error) {
	g := &Gateway{
		mux:           runtime.NewServeMux(),
		handler:       h,
		authenticator: authenticator,
	}
	for _, rt := range routes {
		call, ok := lookupRPC(rt.rpc)
		if !ok {
			return nil, fmt.Errorf("route %s %s: unknown method %s", rt.method, rt.pattern, rt.rpc)
		}
		if err := g.mux.HandlePath(rt.method, rt.pattern, g.rpcHandler(interceptor, rt.rpc, call)); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	if err := g.mux.HandlePath(http.MethodPost, "/v1/sessions", g.wrap(interceptor.Authenticated(http.HandlerFunc(g.openSession)))); err != nil {
		return nil, err
	}
	if err := g.mux.HandlePath(http.MethodDelete, "/v1/sessions", g.wrap(interceptor.Authenticated(http.HandlerFunc(g.closeSession)))); err != nil {
		return nil, err
	}
	if err := g.mux.HandlePath(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

func lookupRPC(name string) (rpc, bool) {
	for _, r := range rpcs {
		if r.name == name {
			return r.call, true
		}
	}
	return nil, false
}

func (g *Gateway) wrap(h http.Handler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		h.ServeHTTP(w, r)
	}
}

func (g *Gateway) rpcHandler(interceptor *auth.Interceptor, name string, call rpc) runtime.HandlerFunc {
	fullMethod := FullMethod(name)
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inbound, outbound := runtime.MarshalerForRequest(g.mux, r)
			ctx := r.Context()

			in, err := requestStruct(inbound, r, pathParams)
			if err != nil {
				runtime.HTTPError(ctx, g.mux, outbound, w, r, err)
				return
			}
			resp, err := call(g.handler, ctx, in)
			if err != nil {
				runtime.HTTPError(ctx, g.mux, outbound, w, r, err)
				return
			}

			if body, ok := resp.(*httpbody.HttpBody); ok {
				w.Header().Set("Content-Type", body.GetContentType())
				w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice-%s.csv"`, time.Now().UTC().Format(dateLayout)))
				_, _ = w.Write(body.GetData())
				return
			}
			data, err := outbound.Marshal(resp)
			if err != nil {
				runtime.HTTPError(ctx, g.mux, outbound, w, r, err)
				return
			}
			w.Header().Set("Content-Type", outbound.ContentType(resp))
			_, _ = w.Write(data)
		})
		interceptor.HTTPMiddleware(fullMethod, inner).ServeHTTP(w, r)
	}
}

// requestStruct merges the JSON body, the query string and the path
// parameters into one request. Path parameters win over query parameters,
// which win over the body.
func requestStruct(dec runtime.Marshaler, r *http.Request, pathParams map[string]string) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if r.Body != nil {
		if err := dec.NewDecoder(r.Body).Decode(in); err != nil && !errors.Is(err, io.EOF) {
			return nil, status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
		}
		if in.Fields == nil {
			in.Fields = map[string]*structpb.Value{}
		}
	}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			in.Fields[key] = structpb.NewStringValue(values[0])
		}
	}
	for key, value := range pathParams {
		in.Fields[key] = structpb.NewStringValue(value)
	}
	return in, nil
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (g *Gateway) openSession(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSONError(w, status.Error(codes.Unauthenticated, "missing identity"))
		return
	}
	s, err := g.authenticator.OpenSession(r.Context(), id)
	if err != nil {
		writeJSONError(w, g.handler.mapServiceError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt.UTC()})
}

func (g *Gateway) closeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSONError(w, status.Error(codes.Unauthenticated, "missing identity"))
		return
	}
	if err := g.authenticator.CloseSession(r.Context(), id); err != nil && !errors.Is(err, e.ErrNotFound) {
		if errors.Is(err, e.ErrInvalidInput) {
			writeJSONError(w, status.Error(codes.InvalidArgument, "request was not made with a session token"))
			return
		}
		writeJSONError(w, g.handler.mapServiceError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSONError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    int(st.Code()),
		"message": st.Message(),
	})
}
