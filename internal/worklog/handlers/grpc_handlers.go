package handlers

import (
	"context"

	"github.com/gartstein/worklog/internal/worklog/auth"
	"github.com/gartstein/worklog/internal/worklog/models"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// WorkLogHandler provides gRPC methods for work-log operations,
// mapping requests to a WorkLogController. The tenant and the caller are
// always taken from the authenticated identity, never from the request.
type WorkLogHandler struct {
	service WorkLogController
	logger  *zap.Logger
}

// NewWorkLogHandler constructs a new WorkLogHandler with the given service and logger.
func NewWorkLogHandler(service WorkLogController, logger *zap.Logger) *WorkLogHandler {
	return &WorkLogHandler{
		service: service,
		logger:  logger.Named("grpc_handler"),
	}
}

func caller(ctx context.Context) (*auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing identity")
	}
	return id, nil
}

func (h *WorkLogHandler) oneWorkLog(wl *models.WorkLog, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	resp, err := workLogResponse(wl)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return resp, nil
}

// SubmitWorkLog records a new entry for the calling operative.
func (h *WorkLogHandler) SubmitWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := structToSubmission(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	sub.CompanyID = id.CompanyID
	sub.UserID = id.UserID
	if id.Name != "" {
		sub.WorkerName = id.Name
	}

	created, err := h.service.Submit(ctx, sub)
	if err != nil {
		h.logger.Warn("Submit work log failed",
			zap.Uint("company_id", id.CompanyID),
			zap.Uint("user_id", id.UserID),
			zap.Error(err))
	}
	return h.oneWorkLog(created, err)
}

// RecordWorkLog stores an entry on behalf of the worker named in the request.
func (h *WorkLogHandler) RecordWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := structToSubmission(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	sub.CompanyID = id.CompanyID
	sub.Project = stringField(req, "project")

	created, err := h.service.Record(ctx, sub)
	if err != nil {
		h.logger.Warn("Record work log failed",
			zap.Uint("company_id", id.CompanyID),
			zap.Uint("manager_id", id.UserID),
			zap.Error(err))
	}
	return h.oneWorkLog(created, err)
}

func (h *WorkLogHandler) ListWorkLogs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	f, err := structToFilter(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	logs, err := h.service.ListWorkLogs(ctx, id.CompanyID, f)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return workLogsResponse(logs)
}

func (h *WorkLogHandler) GetWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	wlID, err := requireID(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return h.oneWorkLog(h.service.GetWorkLog(ctx, id.CompanyID, wlID))
}

// EditWorkLog corrects amounts. The editor recorded in the history is the caller's name.
func (h *WorkLogHandler) EditWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	wlID, err := requireID(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	update, err := structToAmountUpdate(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return h.oneWorkLog(h.service.Edit(ctx, id.CompanyID, wlID, id.Name, update))
}

func (h *WorkLogHandler) ApproveWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.byID(ctx, req, h.service.Approve)
}

func (h *WorkLogHandler) RejectWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.byID(ctx, req, h.service.Reject)
}

func (h *WorkLogHandler) CompleteWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.byID(ctx, req, h.service.Complete)
}

func (h *WorkLogHandler) ArchiveWorkLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.byID(ctx, req, h.service.Archive)
}

func (h *WorkLogHandler) byID(
	ctx context.Context,
	req *structpb.Struct,
	op func(ctx context.Context, companyID, id uint) (*models.WorkLog, error),
) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	wlID, err := requireID(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return h.oneWorkLog(op(ctx, id.CompanyID, wlID))
}

func (h *WorkLogHandler) ConfirmWorkLogEdit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.bySubmitter(ctx, req, h.service.ConfirmEdit)
}

func (h *WorkLogHandler) ContestWorkLogEdit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.bySubmitter(ctx, req, h.service.ContestEdit)
}

func (h *WorkLogHandler) bySubmitter(
	ctx context.Context,
	req *structpb.Struct,
	op func(ctx context.Context, companyID, userID, id uint) (*models.WorkLog, error),
) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	wlID, err := requireID(req)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return h.oneWorkLog(op(ctx, id.CompanyID, id.UserID, wlID))
}

func (h *WorkLogHandler) ArchiveWorkLogs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := idsField(req, "ids")
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	n, err := h.service.ArchiveBulk(ctx, id.CompanyID, ids)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return structpb.NewStruct(map[string]interface{}{"archived": n})
}

func (h *WorkLogHandler) ListWorkers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	names, err := h.service.ListWorkers(ctx, id.CompanyID)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	workers := make([]interface{}, 0, len(names))
	for _, n := range names {
		workers = append(workers, n)
	}
	return structpb.NewStruct(map[string]interface{}{"workers": workers})
}

func (h *WorkLogHandler) GetCostSummary(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := h.service.CostSummary(ctx, id.CompanyID)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"total":         sum.Total.StringFixed(2),
		"lastSevenDays": sum.LastSevenDays.StringFixed(2),
		"thisMonth":     sum.ThisMonth.StringFixed(2),
	})
}

func (h *WorkLogHandler) ListMyWorkLogs(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := h.service.ListMyWorkLogs(ctx, id.CompanyID, id.UserID)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return workLogsResponse(logs)
}

func (h *WorkLogHandler) PreviewInvoice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	inv, err := h.invoice(ctx, req, h.service.PreviewInvoice)
	if err != nil {
		return nil, err
	}
	return invoiceResponse(inv)
}

// ConfirmInvoice archives the invoiced entries and returns the final invoice.
func (h *WorkLogHandler) ConfirmInvoice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	inv, err := h.invoice(ctx, req, h.service.ConfirmInvoice)
	if err != nil {
		return nil, err
	}
	return invoiceResponse(inv)
}

// ExportInvoice renders the invoice preview as CSV. Nothing is archived.
func (h *WorkLogHandler) ExportInvoice(ctx context.Context, req *structpb.Struct) (*httpbody.HttpBody, error) {
	inv, err := h.invoice(ctx, req, h.service.PreviewInvoice)
	if err != nil {
		return nil, err
	}
	data, err := invoiceCSV(inv)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &httpbody.HttpBody{
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

func (h *WorkLogHandler) invoice(
	ctx context.Context,
	req *structpb.Struct,
	op func(ctx context.Context, companyID uint, ids []uint) (*models.Invoice, error),
) (*models.Invoice, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := idsField(req, "ids")
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	inv, err := op(ctx, id.CompanyID, ids)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return inv, nil
}
