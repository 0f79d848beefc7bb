package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gartstein/worklog/internal/pkg/utils"
	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const dateLayout = "2006-01-02"

func field(req *structpb.Struct, name string) (*structpb.Value, bool) {
	if req == nil {
		return nil, false
	}
	v, ok := req.GetFields()[name]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

// stringField returns a string field, rendering numbers without a fraction
// when they are whole.
func stringField(req *structpb.Struct, name string) string {
	v, ok := field(req, name)
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return strings.TrimSpace(k.StringValue)
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	}
	return ""
}

func parseID(v *structpb.Value) (uint, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n <= 0 || n != math.Trunc(n) || n > math.MaxUint32 {
			return 0, fmt.Errorf("invalid id %v", n)
		}
		return uint(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(strings.TrimSpace(k.StringValue), 10, 32)
		if err != nil || n == 0 {
			return 0, fmt.Errorf("invalid id %q", k.StringValue)
		}
		return uint(n), nil
	}
	return 0, errors.New("id must be a number or a numeric string")
}

// requireID reads the mandatory id field.
func requireID(req *structpb.Struct) (uint, error) {
	v, ok := field(req, "id")
	if !ok {
		return 0, fmt.Errorf("%w: id is required", e.ErrInvalidInput)
	}
	id, err := parseID(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}
	return id, nil
}

// idsField reads an optional list of ids.
func idsField(req *structpb.Struct, name string) ([]uint, error) {
	v, ok := field(req, name)
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: %s must be a list", e.ErrInvalidInput, name)
	}
	ids := make([]uint, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		id, err := parseID(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", e.ErrInvalidInput, name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func stringsField(req *structpb.Struct, name string) ([]string, error) {
	v, ok := field(req, name)
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: %s must be a list", e.ErrInvalidInput, name)
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		s, isString := item.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return nil, fmt.Errorf("%w: %s must contain strings", e.ErrInvalidInput, name)
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}

// decimalField reads an optional amount given as a JSON number or a decimal
// string. Missing, null and empty values are absent.
func decimalField(req *structpb.Struct, name string) (decimal.NullDecimal, error) {
	v, ok := field(req, name)
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if math.IsNaN(k.NumberValue) || math.IsInf(k.NumberValue, 0) {
			return decimal.NullDecimal{}, fmt.Errorf("%w: %s is not a number", e.ErrInvalidInput, name)
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(k.NumberValue)), nil
	case *structpb.Value_StringValue:
		s := strings.TrimSpace(k.StringValue)
		if s == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("%w: %s is not a number", e.ErrInvalidInput, name)
		}
		return decimal.NewNullDecimal(d), nil
	}
	return decimal.NullDecimal{}, fmt.Errorf("%w: %s must be a number or a numeric string", e.ErrInvalidInput, name)
}

// dateField parses YYYY-MM-DD or RFC 3339.
func dateField(req *structpb.Struct, name string) (*time.Time, error) {
	s := stringField(req, name)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", e.ErrInvalidInput, name)
	}
	return &t, nil
}

// structToSubmission converts a submit request into a Submission for the caller.
func structToSubmission(req *structpb.Struct) (*models.Submission, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: work log data required", e.ErrInvalidInput)
	}
	sub := &models.Submission{
		WorkerName:      stringField(req, "workerName"),
		Block:           stringField(req, "block"),
		Floor:           stringField(req, "floor"),
		Apartment:       stringField(req, "apartment"),
		Zone:            stringField(req, "zone"),
		WorkType:        stringField(req, "workType"),
		Description:     stringField(req, "description"),
		InvoiceFilePath: stringField(req, "invoiceFilePath"),
	}
	var err error
	if sub.Quantity, err = decimalField(req, "quantity"); err != nil {
		return nil, err
	}
	if sub.UnitPrice, err = decimalField(req, "unitPrice"); err != nil {
		return nil, err
	}
	if sub.Total, err = decimalField(req, "total"); err != nil {
		return nil, err
	}
	if sub.PhotoURLs, err = stringsField(req, "photoUrls"); err != nil {
		return nil, err
	}
	return sub, nil
}

func structToAmountUpdate(req *structpb.Struct) (models.AmountUpdate, error) {
	var u models.AmountUpdate
	for name, dst := range map[string]**decimal.Decimal{
		"quantity":  &u.Quantity,
		"unitPrice": &u.UnitPrice,
		"total":     &u.Total,
	} {
		d, err := decimalField(req, name)
		if err != nil {
			return u, err
		}
		if d.Valid {
			*dst = utils.Ptr(d.Decimal)
		}
	}
	return u, nil
}

func structToFilter(req *structpb.Struct) (models.Filter, error) {
	f := models.Filter{
		Worker:   stringField(req, "worker"),
		Location: stringField(req, "location"),
		Search:   stringField(req, "search"),
	}
	if s := stringField(req, "status"); s != "" && s != "all" {
		st, ok := models.ParseStatus(s)
		if !ok {
			names := make([]string, 0, len(models.Statuses()))
			for _, st := range models.Statuses() {
				names = append(names, string(st))
			}
			return f, fmt.Errorf("%w: unknown status %q, want all or one of %s",
				e.ErrInvalidInput, s, strings.Join(names, ", "))
		}
		f.Status = st
	}
	var err error
	if f.From, err = dateField(req, "dateFrom"); err != nil {
		return f, err
	}
	if f.To, err = dateField(req, "dateTo"); err != nil {
		return f, err
	}
	return f, nil
}

func amountValue(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func workLogToMap(wl *models.WorkLog) map[string]interface{} {
	photos := make([]interface{}, 0, len(wl.PhotoURLs))
	for _, p := range wl.PhotoURLs {
		photos = append(photos, p)
	}
	history := make([]interface{}, 0, len(wl.History))
	for _, h := range wl.History {
		history = append(history, map[string]interface{}{
			"field":      h.Field,
			"oldValue":   h.OldValue,
			"newValue":   h.NewValue,
			"editorName": h.EditorName,
			"timestamp":  h.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"id":                wl.ID,
		"jobDisplayId":      wl.JobDisplayID,
		"companyId":         wl.CompanyID,
		"submittedByUserId": wl.SubmittedByUserID,
		"projectId":         wl.ProjectID,
		"workerName":        wl.WorkerName,
		"project":           wl.Project,
		"block":             wl.Block,
		"floor":             wl.Floor,
		"apartment":         wl.Apartment,
		"zone":              wl.Zone,
		"location":          wl.Location(),
		"workType":          wl.WorkType,
		"quantity":          amountValue(wl.Quantity),
		"unitPrice":         amountValue(wl.UnitPrice),
		"total":             amountValue(wl.Total),
		"description":       wl.Description,
		"photoUrls":         photos,
		"invoiceFilePath":   wl.InvoiceFilePath,
		"status":            string(wl.Status),
		"workWasEdited":     wl.WorkWasEdited,
		"archived":          wl.Archived,
		"version":           wl.Version,
		"submittedAt":       wl.SubmittedAt.UTC().Format(time.RFC3339),
		"updatedAt":         wl.UpdatedAt.UTC().Format(time.RFC3339),
		"history":           history,
	}
}

func workLogResponse(wl *models.WorkLog) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"workLog": workLogToMap(wl)})
}

func workLogsResponse(logs []*models.WorkLog) (*structpb.Struct, error) {
	items := make([]interface{}, 0, len(logs))
	for _, wl := range logs {
		items = append(items, workLogToMap(wl))
	}
	return structpb.NewStruct(map[string]interface{}{
		"workLogs": items,
		"count":    len(items),
	})
}

func invoiceResponse(inv *models.Invoice) (*structpb.Struct, error) {
	lines := make([]interface{}, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, map[string]interface{}{
			"workLogId":    l.WorkLogID,
			"jobDisplayId": l.JobDisplayID,
			"workerName":   l.WorkerName,
			"location":     l.Location,
			"workType":     l.WorkType,
			"quantity":     amountValue(l.Quantity),
			"unitPrice":    amountValue(l.UnitPrice),
			"total":        l.Total.StringFixed(2),
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"companyId":  inv.CompanyID,
		"lines":      lines,
		"count":      len(lines),
		"grandTotal": inv.GrandTotal.StringFixed(2),
	})
}

var csvHeader = []string{"Job ID", "Worker", "Location", "Work Type", "Quantity", "Unit Price", "Total"}

// invoiceCSV renders the invoice with a header row and a closing grand total row.
func invoiceCSV(inv *models.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, l := range inv.Lines {
		if err := w.Write([]string{
			l.JobDisplayID,
			l.WorkerName,
			l.Location,
			l.WorkType,
			models.FormatAmount(l.Quantity),
			models.FormatAmount(l.UnitPrice),
			l.Total.StringFixed(2),
		}); err != nil {
			return nil, err
		}
	}
	if err := w.Write([]string{"", "", "", "", "", "Grand Total", inv.GrandTotal.StringFixed(2)}); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// mapServiceError maps domain or repository errors to appropriate gRPC status codes.
// Storage and unexpected failures are reported without their details.
func (h *WorkLogHandler) mapServiceError(err error) error {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return status.Error(codes.NotFound, "work log not found")
	case errors.Is(err, e.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, e.ErrNoProjectAssigned):
		return status.Error(codes.FailedPrecondition, "no project assigned")
	case errors.Is(err, e.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, e.ErrConflict):
		return status.Error(codes.Aborted, "concurrent update, please retry")
	case errors.Is(err, e.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, e.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	default:
		h.logger.Error("Internal server error", zap.Error(err))
		return status.Error(codes.Internal, "internal server error")
	}
}
