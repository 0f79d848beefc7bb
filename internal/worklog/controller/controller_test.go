package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gartstein/worklog/internal/worklog/db"
	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/gartstein/worklog/internal/worklog/events"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func validSubmission() *models.Submission {
	return &models.Submission{
		CompanyID:  1,
		UserID:     10,
		WorkerName: "Ion Popescu",
		Block:      "A",
		Floor:      "2",
		WorkType:   "Tiling",
		Quantity:   amount("10"),
		UnitPrice:  amount("2.5"),
	}
}

func activeAssignment(_ context.Context, companyID, userID uint) (*models.ProjectAssignment, error) {
	return &models.ProjectAssignment{
		UserID:      userID,
		CompanyID:   companyID,
		ProjectID:   7,
		ProjectName: "Riverside",
		Active:      true,
	}, nil
}

func newService(t *testing.T, repo Repository, producer EventProducer, opts ...Option) *WorkLogService {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithConflictBackOff(0)}, opts...)
	return NewWorkLogService(repo, producer, zaptest.NewLogger(t), opts...)
}

func TestWorkLogService_Submit(t *testing.T) {
	tests := []struct {
		name          string
		input         func() *models.Submission
		mockSetup     func(*MockRepository, *int)
		expectError   bool
		expectedError error
		expectedCalls int
	}{
		{
			name:  "successful submission",
			input: validSubmission,
			mockSetup: func(mr *MockRepository, calls *int) {
				mr.activeAssignment = activeAssignment
				mr.createWorkLog = func(_ context.Context, wl *models.WorkLog) error {
					*calls++
					wl.ID = 1
					wl.JobDisplayID = "WL-001"
					wl.Version = 1
					return nil
				}
			},
			expectedCalls: 1,
		},
		{
			name: "missing work type",
			input: func() *models.Submission {
				s := validSubmission()
				s.WorkType = "   "
				return s
			},
			mockSetup:     func(_ *MockRepository, _ *int) {},
			expectError:   true,
			expectedError: e.ErrInvalidInput,
		},
		{
			name: "negative quantity",
			input: func() *models.Submission {
				s := validSubmission()
				s.Quantity = amount("-1")
				return s
			},
			mockSetup:     func(_ *MockRepository, _ *int) {},
			expectError:   true,
			expectedError: e.ErrInvalidInput,
		},
		{
			name: "amount too precise to store",
			input: func() *models.Submission {
				s := validSubmission()
				s.UnitPrice = amount("2.12345678901")
				return s
			},
			mockSetup:     func(_ *MockRepository, _ *int) {},
			expectError:   true,
			expectedError: e.ErrInvalidInput,
		},
		{
			name: "missing tenant",
			input: func() *models.Submission {
				s := validSubmission()
				s.CompanyID = 0
				return s
			},
			mockSetup:     func(_ *MockRepository, _ *int) {},
			expectError:   true,
			expectedError: e.ErrInvalidInput,
		},
		{
			name:  "no active project",
			input: validSubmission,
			mockSetup: func(mr *MockRepository, _ *int) {
				mr.activeAssignment = func(context.Context, uint, uint) (*models.ProjectAssignment, error) {
					return nil, e.ErrNotFound
				}
			},
			expectError:   true,
			expectedError: e.ErrNoProjectAssigned,
		},
		{
			name:  "conflict is retried once",
			input: validSubmission,
			mockSetup: func(mr *MockRepository, calls *int) {
				mr.activeAssignment = activeAssignment
				mr.createWorkLog = func(_ context.Context, wl *models.WorkLog) error {
					*calls++
					if *calls == 1 {
						return fmt.Errorf("%w: duplicate key", e.ErrConflict)
					}
					wl.ID = 2
					wl.JobDisplayID = "WL-002"
					return nil
				}
			},
			expectedCalls: 2,
		},
		{
			name:  "conflict twice is surfaced",
			input: validSubmission,
			mockSetup: func(mr *MockRepository, calls *int) {
				mr.activeAssignment = activeAssignment
				mr.createWorkLog = func(context.Context, *models.WorkLog) error {
					*calls++
					return e.ErrConflict
				}
			},
			expectError:   true,
			expectedError: e.ErrConflict,
			expectedCalls: 2,
		},
		{
			name:  "storage error is not retried",
			input: validSubmission,
			mockSetup: func(mr *MockRepository, calls *int) {
				mr.activeAssignment = activeAssignment
				mr.createWorkLog = func(context.Context, *models.WorkLog) error {
					*calls++
					return fmt.Errorf("%w: connection refused", e.ErrStorageUnavailable)
				}
			},
			expectError:   true,
			expectedError: e.ErrStorageUnavailable,
			expectedCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &MockRepository{}
			calls := 0
			tt.mockSetup(mockRepo, &calls)
			mockProducer := &MockProducer{wg: new(sync.WaitGroup)}
			service := newService(t, mockRepo, mockProducer)

			if !tt.expectError {
				mockProducer.wg.Add(1)
			}

			result, err := service.Submit(context.Background(), tt.input())

			if !tt.expectError {
				mockProducer.wg.Wait()
			}
			assert.Equal(t, tt.expectedCalls, calls)

			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Empty(t, mockProducer.Events())
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, result.JobDisplayID)
			assert.Equal(t, models.StatusPending, result.Status)
			assert.Equal(t, uint(7), result.ProjectID)
			assert.Equal(t, "Riverside", result.Project)
			assert.Equal(t, "25", result.Total.Decimal.String())
			assert.Equal(t, fixedNow, result.SubmittedAt)
			assert.Equal(t, []events.EventType{events.WorkLogSubmitted}, mockProducer.Types())
		})
	}
}

func TestWorkLogService_Record(t *testing.T) {
	t.Run("stores the entry for the named worker", func(t *testing.T) {
		var created *models.WorkLog
		mockRepo := &MockRepository{
			createWorkLog: func(_ context.Context, wl *models.WorkLog) error {
				wl.ID = 5
				wl.JobDisplayID = "WL-005"
				created = wl
				return nil
			},
		}
		mockProducer := &MockProducer{wg: new(sync.WaitGroup)}
		mockProducer.wg.Add(1)
		service := newService(t, mockRepo, mockProducer)

		sub := validSubmission()
		sub.UserID = 0
		sub.Project = "  Harbour View "
		result, err := service.Record(context.Background(), sub)
		mockProducer.wg.Wait()

		require.NoError(t, err)
		assert.Same(t, created, result)
		assert.Equal(t, "Ion Popescu", result.WorkerName)
		assert.Equal(t, "Harbour View", result.Project)
		assert.Zero(t, result.SubmittedByUserID)
		assert.Zero(t, result.ProjectID)
		assert.Equal(t, models.StatusPending, result.Status)
		assert.Equal(t, "25", result.Total.Decimal.String())
		assert.Equal(t, []events.EventType{events.WorkLogSubmitted}, mockProducer.Types())
	})

	t.Run("worker name is required", func(t *testing.T) {
		service := newService(t, &MockRepository{}, &MockProducer{})

		sub := validSubmission()
		sub.WorkerName = "  "
		_, err := service.Record(context.Background(), sub)
		assert.ErrorIs(t, err, e.ErrInvalidInput)
	})

	t.Run("fields are validated as for submissions", func(t *testing.T) {
		service := newService(t, &MockRepository{}, &MockProducer{})

		sub := validSubmission()
		sub.WorkType = ""
		_, err := service.Record(context.Background(), sub)
		assert.ErrorIs(t, err, e.ErrInvalidInput)

		sub = validSubmission()
		sub.CompanyID = 0
		_, err = service.Record(context.Background(), sub)
		assert.ErrorIs(t, err, e.ErrInvalidInput)
	})
}

// mutating returns an updateWorkLog stub that runs the mutator on a copy of wl.
func mutating(wl models.WorkLog) func(context.Context, uint, uint, db.Mutator) (*models.WorkLog, error) {
	return func(_ context.Context, companyID, id uint, mutate db.Mutator) (*models.WorkLog, error) {
		if companyID != wl.CompanyID || id != wl.ID {
			return nil, e.ErrNotFound
		}
		w := wl
		records, err := mutate(&w)
		if err != nil {
			return nil, err
		}
		w.History = append(w.History, records...)
		return &w, nil
	}
}

func TestWorkLogService_Transitions(t *testing.T) {
	base := models.WorkLog{
		ID:                3,
		JobDisplayID:      "WL-003",
		CompanyID:         1,
		SubmittedByUserID: 10,
		Status:            models.StatusPending,
		Quantity:          amount("10"),
		UnitPrice:         amount("2.5"),
		Total:             amount("25"),
	}
	with := func(mod func(*models.WorkLog)) models.WorkLog {
		wl := base
		mod(&wl)
		return wl
	}

	tests := []struct {
		name          string
		stored        models.WorkLog
		opts          []Option
		call          func(*WorkLogService) (*models.WorkLog, error)
		expectedError error
		expectStatus  models.Status
		expectEvent   events.EventType
	}{
		{
			name:         "approve pending",
			stored:       base,
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.Approve(context.Background(), 1, 3) },
			expectStatus: models.StatusApproved,
			expectEvent:  events.WorkLogApproved,
		},
		{
			name:         "reject approved overwrites",
			stored:       with(func(w *models.WorkLog) { w.Status = models.StatusApproved }),
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.Reject(context.Background(), 1, 3) },
			expectStatus: models.StatusRejected,
			expectEvent:  events.WorkLogRejected,
		},
		{
			name:         "approve already approved is silent",
			stored:       with(func(w *models.WorkLog) { w.Status = models.StatusApproved }),
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.Approve(context.Background(), 1, 3) },
			expectStatus: models.StatusApproved,
		},
		{
			name:          "approve waiting worker is blocked",
			stored:        with(func(w *models.WorkLog) { w.Status = models.StatusWaitingWorker }),
			call:          func(s *WorkLogService) (*models.WorkLog, error) { return s.Approve(context.Background(), 1, 3) },
			expectedError: e.ErrInvalidTransition,
		},
		{
			name:         "approve waiting worker when confirmation is off",
			stored:       with(func(w *models.WorkLog) { w.Status = models.StatusWaitingWorker }),
			opts:         []Option{WithWorkerConfirmation(false)},
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.Approve(context.Background(), 1, 3) },
			expectStatus: models.StatusApproved,
			expectEvent:  events.WorkLogApproved,
		},
		{
			name:          "other tenant",
			stored:        base,
			call:          func(s *WorkLogService) (*models.WorkLog, error) { return s.Approve(context.Background(), 2, 3) },
			expectedError: e.ErrNotFound,
		},
		{
			name:         "complete approved",
			stored:       with(func(w *models.WorkLog) { w.Status = models.StatusApproved }),
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.Complete(context.Background(), 1, 3) },
			expectStatus: models.StatusCompleted,
			expectEvent:  events.WorkLogCompleted,
		},
		{
			name:          "complete pending",
			stored:        base,
			call:          func(s *WorkLogService) (*models.WorkLog, error) { return s.Complete(context.Background(), 1, 3) },
			expectedError: e.ErrInvalidTransition,
		},
		{
			name:         "worker confirms edit",
			stored:       with(func(w *models.WorkLog) { w.Status = models.StatusWaitingWorker }),
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.ConfirmEdit(context.Background(), 1, 10, 3) },
			expectStatus: models.StatusEdited,
			expectEvent:  events.WorkLogConfirmed,
		},
		{
			name:         "worker contests edit",
			stored:       with(func(w *models.WorkLog) { w.Status = models.StatusWaitingWorker }),
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.ContestEdit(context.Background(), 1, 10, 3) },
			expectStatus: models.StatusPending,
			expectEvent:  events.WorkLogContested,
		},
		{
			name:          "another worker cannot confirm",
			stored:        with(func(w *models.WorkLog) { w.Status = models.StatusWaitingWorker }),
			call:          func(s *WorkLogService) (*models.WorkLog, error) { return s.ConfirmEdit(context.Background(), 1, 11, 3) },
			expectedError: e.ErrNotFound,
		},
		{
			name:          "confirm without pending edit",
			stored:        base,
			call:          func(s *WorkLogService) (*models.WorkLog, error) { return s.ConfirmEdit(context.Background(), 1, 10, 3) },
			expectedError: e.ErrInvalidTransition,
		},
		{
			name:         "archive keeps status",
			stored:       with(func(w *models.WorkLog) { w.Status = models.StatusApproved }),
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.Archive(context.Background(), 1, 3) },
			expectStatus: models.StatusApproved,
			expectEvent:  events.WorkLogArchived,
		},
		{
			name:         "archive twice is a silent success",
			stored:       with(func(w *models.WorkLog) { w.Archived = true }),
			call:         func(s *WorkLogService) (*models.WorkLog, error) { return s.Archive(context.Background(), 1, 3) },
			expectStatus: models.StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &MockRepository{updateWorkLog: mutating(tt.stored)}
			mockProducer := &MockProducer{wg: new(sync.WaitGroup)}
			if tt.expectEvent != "" {
				mockProducer.wg.Add(1)
			}
			service := newService(t, mockRepo, mockProducer, tt.opts...)

			result, err := tt.call(service)
			mockProducer.wg.Wait()

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Empty(t, mockProducer.Events())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectStatus, result.Status)
			if tt.expectEvent == "" {
				assert.Empty(t, mockProducer.Events())
				return
			}
			assert.Equal(t, []events.EventType{tt.expectEvent}, mockProducer.Types())
			assert.Equal(t, fixedNow, result.UpdatedAt)
		})
	}
}

func TestWorkLogService_Edit(t *testing.T) {
	stored := models.WorkLog{
		ID:        3,
		CompanyID: 1,
		Status:    models.StatusApproved,
		Quantity:  amount("10"),
		UnitPrice: amount("2.5"),
		Total:     amount("25"),
	}

	t.Run("numeric equality is not an edit", func(t *testing.T) {
		mockProducer := &MockProducer{}
		service := newService(t, &MockRepository{updateWorkLog: mutating(stored)}, mockProducer)

		q := decimal.RequireFromString("10.000")
		result, err := service.Edit(context.Background(), 1, 3, "Dana", models.AmountUpdate{Quantity: &q})

		require.NoError(t, err)
		assert.Empty(t, result.History)
		assert.Equal(t, models.StatusApproved, result.Status)
		assert.False(t, result.WorkWasEdited)
		assert.Empty(t, mockProducer.Events())
	})

	t.Run("changed fields are recorded", func(t *testing.T) {
		mockProducer := &MockProducer{wg: new(sync.WaitGroup)}
		mockProducer.wg.Add(1)
		service := newService(t, &MockRepository{updateWorkLog: mutating(stored)}, mockProducer)

		q := decimal.RequireFromString("12")
		p := decimal.RequireFromString("2.50")
		total := decimal.RequireFromString("30")
		result, err := service.Edit(context.Background(), 1, 3, "  ", models.AmountUpdate{Quantity: &q, UnitPrice: &p, Total: &total})
		mockProducer.wg.Wait()

		require.NoError(t, err)
		require.Len(t, result.History, 2)
		assert.Equal(t, models.FieldQuantity, result.History[0].Field)
		assert.Equal(t, models.FieldTotal, result.History[1].Field)
		assert.Equal(t, "Manager", result.History[0].EditorName)
		assert.Equal(t, fixedNow, result.History[0].Timestamp)
		assert.Equal(t, models.StatusWaitingWorker, result.Status)
		assert.True(t, result.WorkWasEdited)
		assert.Equal(t, []events.EventType{events.WorkLogEdited}, mockProducer.Types())
	})

	t.Run("archived entries cannot be edited", func(t *testing.T) {
		archived := stored
		archived.Archived = true
		service := newService(t, &MockRepository{updateWorkLog: mutating(archived)}, &MockProducer{})

		q := decimal.RequireFromString("12")
		_, err := service.Edit(context.Background(), 1, 3, "Dana", models.AmountUpdate{Quantity: &q})
		assert.ErrorIs(t, err, e.ErrInvalidTransition)
	})

	t.Run("negative amounts are rejected before storage", func(t *testing.T) {
		service := newService(t, &MockRepository{}, &MockProducer{})

		p := decimal.RequireFromString("-0.01")
		_, err := service.Edit(context.Background(), 1, 3, "Dana", models.AmountUpdate{UnitPrice: &p})
		assert.ErrorIs(t, err, e.ErrInvalidInput)
	})

	t.Run("amounts beyond the stored bounds are rejected before storage", func(t *testing.T) {
		service := newService(t, &MockRepository{}, &MockProducer{})

		for _, v := range []string{"1234567890123456789", "0.00000000001", "1e40"} {
			q := decimal.RequireFromString(v)
			_, err := service.Edit(context.Background(), 1, 3, "Dana", models.AmountUpdate{Quantity: &q})
			assert.ErrorIs(t, err, e.ErrInvalidInput, v)
		}
	})

	t.Run("an empty update reads without writing", func(t *testing.T) {
		mockProducer := &MockProducer{}
		mockRepo := &MockRepository{
			getWorkLog: func(context.Context, uint, uint) (*models.WorkLog, error) {
				w := stored
				return &w, nil
			},
		}
		service := newService(t, mockRepo, mockProducer)

		result, err := service.Edit(context.Background(), 1, 3, "Dana", models.AmountUpdate{})

		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, result.Status)
		assert.Empty(t, mockProducer.Events())
	})

	t.Run("an empty update on an archived entry is refused", func(t *testing.T) {
		archived := stored
		archived.Archived = true
		mockRepo := &MockRepository{
			getWorkLog: func(context.Context, uint, uint) (*models.WorkLog, error) { return &archived, nil },
		}
		service := newService(t, mockRepo, &MockProducer{})

		_, err := service.Edit(context.Background(), 1, 3, "Dana", models.AmountUpdate{})
		assert.ErrorIs(t, err, e.ErrInvalidTransition)
	})

	t.Run("version conflict is retried once", func(t *testing.T) {
		attempts := 0
		mockRepo := &MockRepository{
			updateWorkLog: func(ctx context.Context, companyID, id uint, mutate db.Mutator) (*models.WorkLog, error) {
				attempts++
				if attempts == 1 {
					return nil, e.ErrConflict
				}
				return mutating(stored)(ctx, companyID, id, mutate)
			},
		}
		mockProducer := &MockProducer{wg: new(sync.WaitGroup)}
		mockProducer.wg.Add(1)
		service := newService(t, mockRepo, mockProducer)

		q := decimal.RequireFromString("11")
		result, err := service.Edit(context.Background(), 1, 3, "Dana", models.AmountUpdate{Quantity: &q})
		mockProducer.wg.Wait()

		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Len(t, result.History, 1)
	})
}

func TestWorkLogService_ArchiveBulk(t *testing.T) {
	t.Run("counts tenant-owned ids", func(t *testing.T) {
		mockRepo := &MockRepository{
			archiveWorkLogs: func(_ context.Context, companyID uint, ids []uint, at time.Time) ([]uint, error) {
				assert.Equal(t, uint(1), companyID)
				assert.Equal(t, []uint{4, 99}, ids)
				assert.Equal(t, fixedNow, at)
				return []uint{4}, nil
			},
		}
		mockProducer := &MockProducer{wg: new(sync.WaitGroup)}
		mockProducer.wg.Add(1)
		service := newService(t, mockRepo, mockProducer)

		n, err := service.ArchiveBulk(context.Background(), 1, []uint{0, 4, 99})
		mockProducer.wg.Wait()

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, mockProducer.Events(), 1)
		assert.Equal(t, []uint{4}, mockProducer.Events()[0].WorkLogIDs)
	})

	t.Run("no valid ids", func(t *testing.T) {
		service := newService(t, &MockRepository{}, &MockProducer{})
		_, err := service.ArchiveBulk(context.Background(), 1, []uint{0})
		assert.ErrorIs(t, err, e.ErrInvalidInput)
	})
}

func TestWorkLogService_ReadsDegradeWhenStorageUnavailable(t *testing.T) {
	unavailable := fmt.Errorf("%w: relation \"work_logs\" does not exist", e.ErrStorageUnavailable)
	mockRepo := &MockRepository{
		listWorkLogs: func(context.Context, uint, models.Filter) ([]*models.WorkLog, error) {
			return nil, unavailable
		},
		listBySubmitter: func(context.Context, uint, uint, int) ([]*models.WorkLog, error) {
			return nil, unavailable
		},
		listWorkers: func(context.Context, uint) ([]string, error) {
			return nil, unavailable
		},
		sumTotals: func(context.Context, uint, time.Time) (decimal.Decimal, error) {
			return decimal.Zero, unavailable
		},
		getWorkLog: func(context.Context, uint, uint) (*models.WorkLog, error) {
			return nil, unavailable
		},
	}
	core, recorded := observer.New(zap.WarnLevel)
	service := NewWorkLogService(mockRepo, &MockProducer{}, zap.New(core))
	ctx := context.Background()

	logs, err := service.ListWorkLogs(ctx, 1, models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, logs)

	mine, err := service.ListMyWorkLogs(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, mine)

	workers, err := service.ListWorkers(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, workers)

	summary, err := service.CostSummary(ctx, 1)
	require.NoError(t, err)
	assert.True(t, summary.Total.IsZero())

	assert.Equal(t, 4, recorded.FilterMessage("Serving empty result, storage unavailable").Len())

	_, err = service.GetWorkLog(ctx, 1, 3)
	assert.ErrorIs(t, err, e.ErrStorageUnavailable, "single reads are not degraded")
	logged := recorded.FilterMessage("Storage operation failed").All()
	require.Len(t, logged, 1)
	assert.Equal(t, "get work log", logged[0].ContextMap()["operation"])
	assert.Equal(t, uint64(3), logged[0].ContextMap()["worklog_id"])
}

func TestWorkLogService_ListWorkLogs_InvalidRange(t *testing.T) {
	service := newService(t, &MockRepository{}, &MockProducer{})
	from := fixedNow
	to := fixedNow.AddDate(0, 0, -1)

	_, err := service.ListWorkLogs(context.Background(), 1, models.Filter{From: &from, To: &to})
	assert.ErrorIs(t, err, e.ErrInvalidInput)
}

func TestWorkLogService_OtherErrorsAreNotDegraded(t *testing.T) {
	mockRepo := &MockRepository{
		listWorkers: func(context.Context, uint) ([]string, error) {
			return nil, errors.New("boom")
		},
	}
	service := newService(t, mockRepo, &MockProducer{})

	_, err := service.ListWorkers(context.Background(), 1)
	assert.Error(t, err)
}
